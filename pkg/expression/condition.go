package expression

import (
	"strings"

	"github.com/expr-lang/expr"
)

// EvalCondition substitutes {{context.*}} tokens in the expression with
// literals and evaluates the result as a boolean. The condition language is a
// restricted expression grammar (comparisons, arithmetic, && and ||) compiled
// by expr rather than any host-language eval, so author-supplied strings
// cannot execute arbitrary code.
//
// Malformed expressions fail safe: any substitution, compile or runtime error
// yields false, never a panic. An empty expression is true.
func EvalCondition(condition string, context map[string]any) (result bool) {
	defer func() {
		if recover() != nil {
			result = false
		}
	}()

	condition = strings.TrimSpace(condition)
	if condition == "" || condition == "true" {
		return true
	}

	rendered := replaceTokens(condition, context, renderLiteral)

	program, err := expr.Compile(rendered, expr.AsBool())
	if err != nil {
		return false
	}

	out, err := expr.Run(program, map[string]any{})
	if err != nil {
		return false
	}

	pass, ok := out.(bool)

	return ok && pass
}
