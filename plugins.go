package stepflow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

type PluginPriority int

const (
	PriorityLow    PluginPriority = 0
	PriorityNormal PluginPriority = 50
	PriorityHigh   PluginPriority = 100
)

// Plugin represents a lifecycle hook system for workflows.
// Hooks are always called from the goroutine driving the workflow.
type Plugin interface {
	// Name returns unique plugin identifier
	Name() string

	// Priority determines execution order (higher = earlier)
	Priority() PluginPriority

	// Lifecycle hooks
	OnWorkflowStart(ctx context.Context, wf *Workflow) error
	OnWorkflowComplete(ctx context.Context, wf *Workflow) error
	OnWorkflowFailed(ctx context.Context, wf *Workflow, err error) error
	OnStepStart(ctx context.Context, wf *Workflow, step *Step) error
	OnStepComplete(ctx context.Context, wf *Workflow, step *Step) error
	OnStepFailed(ctx context.Context, wf *Workflow, step *Step, err error) error
	OnStepSkipped(ctx context.Context, wf *Workflow, step *Step) error
}

// BasePlugin provides default no-op implementations
type BasePlugin struct {
	name     string
	priority PluginPriority
}

func NewBasePlugin(name string, priority PluginPriority) BasePlugin {
	return BasePlugin{name: name, priority: priority}
}

func (p BasePlugin) Name() string             { return p.name }
func (p BasePlugin) Priority() PluginPriority { return p.priority }
func (p BasePlugin) OnWorkflowStart(context.Context, *Workflow) error {
	return nil
}
func (p BasePlugin) OnWorkflowComplete(context.Context, *Workflow) error {
	return nil
}
func (p BasePlugin) OnWorkflowFailed(context.Context, *Workflow, error) error {
	return nil
}
func (p BasePlugin) OnStepStart(context.Context, *Workflow, *Step) error { return nil }
func (p BasePlugin) OnStepComplete(context.Context, *Workflow, *Step) error {
	return nil
}
func (p BasePlugin) OnStepFailed(context.Context, *Workflow, *Step, error) error {
	return nil
}
func (p BasePlugin) OnStepSkipped(context.Context, *Workflow, *Step) error { return nil }

// PluginManager manages plugin lifecycle
type PluginManager struct {
	plugins []Plugin
	logger  *slog.Logger
	mu      sync.RWMutex
}

func NewPluginManager() *PluginManager {
	return &PluginManager{
		plugins: make([]Plugin, 0),
		logger:  slog.Default(),
	}
}

func (pm *PluginManager) Register(plugin Plugin) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.plugins = append(pm.plugins, plugin)

	sort.SliceStable(pm.plugins, func(i, j int) bool {
		return pm.plugins[i].Priority() > pm.plugins[j].Priority()
	})
}

func (pm *PluginManager) Plugins() []Plugin {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	out := make([]Plugin, len(pm.plugins))
	copy(out, pm.plugins)

	return out
}

func (pm *PluginManager) setLogger(logger *slog.Logger) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.logger = logger
}

func (pm *PluginManager) ExecuteWorkflowStart(ctx context.Context, wf *Workflow) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, plugin := range pm.plugins {
		if err := plugin.OnWorkflowStart(ctx, wf); err != nil {
			return fmt.Errorf("plugin %s failed: %w", plugin.Name(), err)
		}
	}

	return nil
}

func (pm *PluginManager) ExecuteWorkflowComplete(ctx context.Context, wf *Workflow) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, plugin := range pm.plugins {
		if err := plugin.OnWorkflowComplete(ctx, wf); err != nil {
			pm.logger.Error("[stepflow] plugin error on workflow complete", "plugin", plugin.Name(), "error", err)
		}
	}
}

func (pm *PluginManager) ExecuteWorkflowFailed(ctx context.Context, wf *Workflow, cause error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, plugin := range pm.plugins {
		if err := plugin.OnWorkflowFailed(ctx, wf, cause); err != nil {
			pm.logger.Error("[stepflow] plugin error on workflow failed", "plugin", plugin.Name(), "error", err)
		}
	}
}

func (pm *PluginManager) ExecuteStepStart(ctx context.Context, wf *Workflow, step *Step) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, plugin := range pm.plugins {
		if err := plugin.OnStepStart(ctx, wf, step); err != nil {
			return fmt.Errorf("plugin %s failed: %w", plugin.Name(), err)
		}
	}

	return nil
}

func (pm *PluginManager) ExecuteStepComplete(ctx context.Context, wf *Workflow, step *Step) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, plugin := range pm.plugins {
		if err := plugin.OnStepComplete(ctx, wf, step); err != nil {
			pm.logger.Error("[stepflow] plugin error on step complete", "plugin", plugin.Name(), "error", err)
		}
	}
}

func (pm *PluginManager) ExecuteStepFailed(ctx context.Context, wf *Workflow, step *Step, cause error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, plugin := range pm.plugins {
		if err := plugin.OnStepFailed(ctx, wf, step, cause); err != nil {
			pm.logger.Error("[stepflow] plugin error on step failed", "plugin", plugin.Name(), "error", err)
		}
	}
}

func (pm *PluginManager) ExecuteStepSkipped(ctx context.Context, wf *Workflow, step *Step) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, plugin := range pm.plugins {
		if err := plugin.OnStepSkipped(ctx, wf, step); err != nil {
			pm.logger.Error("[stepflow] plugin error on step skipped", "plugin", plugin.Name(), "error", err)
		}
	}
}
