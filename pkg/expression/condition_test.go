package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvalCondition(t *testing.T) {
	context := map[string]any{
		"contact": map[string]any{
			"score": 72.0,
			"email": "ada@example.com",
			"vip":   true,
		},
		"deal": map[string]any{
			"stage":  "negotiation",
			"amount": 1250.5,
		},
	}

	tests := []struct {
		name      string
		condition string
		expected  bool
	}{
		{name: "empty condition is true", condition: "", expected: true},
		{name: "literal true", condition: "true", expected: true},
		{name: "literal false", condition: "false", expected: false},
		{name: "numeric comparison passes", condition: "{{context.contact.score}} > 50", expected: true},
		{name: "numeric comparison fails", condition: "{{context.contact.score}} > 100", expected: false},
		{name: "string equality", condition: `{{context.deal.stage}} == "negotiation"`, expected: true},
		{name: "string inequality", condition: `{{context.deal.stage}} == "won"`, expected: false},
		{name: "boolean field", condition: "{{context.contact.vip}}", expected: true},
		{
			name:      "conjunction",
			condition: `{{context.contact.score}} > 50 && {{context.deal.amount}} >= 1000`,
			expected:  true,
		},
		{
			name:      "disjunction short-circuits",
			condition: `{{context.deal.stage}} == "won" || {{context.contact.vip}}`,
			expected:  true,
		},
		{name: "missing path compares as nil", condition: "{{context.contact.ghost}} == nil", expected: true},
		{name: "missing path in comparison fails safe", condition: "{{context.contact.ghost}} > 10", expected: false},
		{name: "malformed expression fails safe", condition: "{{context.contact.score}} >>> 10", expected: false},
		{name: "non-boolean result fails safe", condition: "{{context.contact.score}} + 1", expected: false},
		{name: "garbage input fails safe", condition: ");;drop everything((", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EvalCondition(tt.condition, context))
		})
	}
}

func TestEvalConditionNeverPanics(t *testing.T) {
	inputs := []string{
		"{{context}}",
		"((((",
		"nil.nope",
		`{{context.a}} == {{context.b}}`,
	}

	for _, condition := range inputs {
		assert.NotPanics(t, func() {
			EvalCondition(condition, nil)
		})
	}
}
