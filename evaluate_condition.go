package stepflow

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

func evaluateCondition(expr string, data map[string]any) (bool, error) {
	tpl, err := template.New("condition").Option("missingkey=zero").Funcs(template.FuncMap{
		"eq": func(a, b any) bool { return a == b },
		"ne": func(a, b any) bool { return a != b },
		"gt": func(a, b any) bool { return toFloat(a) > toFloat(b) },
		"lt": func(a, b any) bool { return toFloat(a) < toFloat(b) },
		"ge": func(a, b any) bool { return toFloat(a) >= toFloat(b) },
		"le": func(a, b any) bool { return toFloat(a) <= toFloat(b) },
	}).Parse(expr)
	if err != nil {
		return false, fmt.Errorf("parse condition: %w", err)
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return false, fmt.Errorf("execute condition: %w", err)
	}

	result := strings.TrimSpace(buf.String())
	switch result {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("invalid condition output: %q", result)
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

// ExprGuard builds a guard from a template expression such as
// `{{ gt .count 0 }}`, evaluated against the context values.
func ExprGuard(expr string) GuardFunc {
	return func(data *SharedContext) (bool, error) {
		return evaluateCondition(expr, data.Data())
	}
}

// KeyGuard passes when key is present and not the zero-like values nil,
// false, "" or 0.
func KeyGuard(key string) GuardFunc {
	return func(data *SharedContext) (bool, error) {
		val, ok := data.Lookup(key)
		if !ok {
			return false, nil
		}

		switch v := val.(type) {
		case nil:
			return false, nil
		case bool:
			return v, nil
		case string:
			return v != "", nil
		case int:
			return v != 0, nil
		case int64:
			return v != 0, nil
		case float64:
			return v != 0, nil
		default:
			return true, nil
		}
	}
}
