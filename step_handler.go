package stepflow

import (
	"context"
	"fmt"
	"runtime/debug"
)

// invokeWork runs the step's work function once. Panics become errors and a
// false result becomes ErrFalseResult.
func invokeWork(ctx context.Context, step *Step, data *SharedContext) (result any, errRes error) {
	if step.Work == nil {
		return nil, ErrNoWork
	}

	defer func() {
		if r := recover(); r != nil {
			result = nil
			errRes = fmt.Errorf("panic in step %q: %v\n%s", step.Name, r, debug.Stack())
		}
	}()

	result, errRes = step.Work(ctx, data)
	if errRes != nil {
		return nil, errRes
	}

	if isFalse(result) {
		return result, ErrFalseResult
	}

	return result, nil
}

// evaluateGuard fails closed: a guard error or panic reads as false and is
// returned only for logging.
func evaluateGuard(step *Step, data *SharedContext) (ok bool, errRes error) {
	if step.Guard == nil {
		return true, nil
	}

	defer func() {
		if r := recover(); r != nil {
			ok = false
			errRes = fmt.Errorf("%w: panic in guard of %q: %v", ErrGuardFailed, step.Name, r)
		}
	}()

	ok, err := step.Guard(data)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrGuardFailed, err)
	}

	return ok, nil
}
