package executor

import "github.com/Knetic/govaluate"

// BindingFunctionRegistry holds custom functions usable inside binding
// expressions. Only functions registered here are available to govaluate,
// keeping the expression surface whitelisted.
type BindingFunctionRegistry struct {
	functions map[string]govaluate.ExpressionFunction
}

var globalBindingFuncRegistry = &BindingFunctionRegistry{functions: make(map[string]govaluate.ExpressionFunction)}

// RegisterBindingFunction registers a custom function for use in capability
// binding expressions. Call before the orchestrator starts serving requests.
func RegisterBindingFunction(name string, fn govaluate.ExpressionFunction) {
	globalBindingFuncRegistry.functions[name] = fn
}

func whitelistedFunctions() map[string]govaluate.ExpressionFunction {
	whitelist := make(map[string]govaluate.ExpressionFunction, len(globalBindingFuncRegistry.functions))
	for k, v := range globalBindingFuncRegistry.functions {
		whitelist[k] = v
	}
	return whitelist
}

// ValidateBinding checks that a binding expression parses, after variable
// references are masked out. Useful at registry setup time.
func ValidateBinding(expr string) error {
	masked := bindingVarPattern.ReplaceAllString(expr, "0")
	_, err := govaluate.NewEvaluableExpressionWithFunctions(masked, whitelistedFunctions())
	return err
}
