package meta

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"

	"github.com/debgen/debgen/pkg/generator"
)

// Environment is the target platform a dependency guard is evaluated
// against.
type Environment struct {
	OS        string
	OSVersion string
	Channel   string
}

// ConditionEvaluator evaluates dependency guard expressions safely.
//
// Guards are single Starlark expressions with the target platform exposed as
// the predeclared strings os, os_version, and channel, e.g.
//
//	channel == "jazzy" and os == "ubuntu"
type ConditionEvaluator struct {
	timeout time.Duration
}

// NewConditionEvaluator creates a new guard evaluator.
func NewConditionEvaluator(timeout time.Duration) *ConditionEvaluator {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &ConditionEvaluator{timeout: timeout}
}

// Evaluate evaluates one guard expression. An empty expression is true. A
// syntax error, a runtime error, or a non-boolean result is a metadata-class
// error: a malformed guard means the descriptor is broken, not that the
// dependency is absent.
func (ce *ConditionEvaluator) Evaluate(ctx context.Context, expr string, env Environment) (bool, error) {
	if expr == "" {
		return true, nil
	}

	evalCtx, cancel := context.WithTimeout(ctx, ce.timeout)
	defer cancel()

	type evalResult struct {
		value starlark.Value
		err   error
	}
	resultCh := make(chan evalResult, 1)

	go func() {
		thread := &starlark.Thread{
			Name: "debgen-condition",
			Print: func(_ *starlark.Thread, _ string) {
				// Guards have no output channel.
			},
		}
		predeclared := starlark.StringDict{
			"os":         starlark.String(env.OS),
			"os_version": starlark.String(env.OSVersion),
			"channel":    starlark.String(env.Channel),
		}
		value, err := starlark.Eval(thread, "condition", expr, predeclared)
		resultCh <- evalResult{value: value, err: err}
	}()

	select {
	case <-evalCtx.Done():
		return false, generator.NewMetadataError(
			fmt.Sprintf("condition %q timed out after %v", expr, ce.timeout), evalCtx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return false, generator.NewMetadataError(
				fmt.Sprintf("condition %q failed to evaluate", expr), res.err)
		}
		b, ok := res.value.(starlark.Bool)
		if !ok {
			return false, generator.NewMetadataError(
				fmt.Sprintf("condition %q evaluated to %s, want bool", expr, res.value.Type()), nil)
		}
		return bool(b), nil
	}
}

// EvaluateConditions evaluates every dependency guard of pkg against env and
// caches the result on the dependency. It stops at the first malformed
// guard.
func (ce *ConditionEvaluator) EvaluateConditions(ctx context.Context, pkg *Package, env Environment) error {
	for _, dep := range pkg.AllDependencies() {
		passed, err := ce.Evaluate(ctx, dep.Condition, env)
		if err != nil {
			if ge, ok := err.(*generator.Error); ok {
				return ge.WithPackage(pkg.Name)
			}
			return err
		}
		dep.EvaluatedCondition = &passed
	}
	return nil
}
