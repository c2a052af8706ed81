package workflow

import (
	"fmt"

	"github.com/dop251/goja"
)

// evalCondition runs a step's boolean expression in a fresh goja VM with
// `input` and `steps` bound as globals, matching the execution context's
// shape so an expression can read e.g. "steps.fetch.output.count > 10".
func evalCondition(expr string, data map[string]any) (bool, error) {
	vm := goja.New()
	for k, v := range data {
		if err := vm.Set(k, v); err != nil {
			return false, fmt.Errorf("workflow: bind condition variable %q: %w", k, err)
		}
	}
	v, err := vm.RunString(expr)
	if err != nil {
		return false, fmt.Errorf("workflow: evaluate condition %q: %w", expr, err)
	}
	return v.ToBoolean(), nil
}
