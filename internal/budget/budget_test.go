package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnforceReturnsUnchangedWhenUnderBudget(t *testing.T) {
	sections := []Section{
		{Name: "a", Content: "short", Priority: 0},
	}
	out := Enforce(sections, 1000)
	assert.Equal(t, sections, out)
}

func TestEnforceBudgetOverflowScenario(t *testing.T) {
	// Mirrors the spec's worked example: A protected (10 tokens), B
	// priority 1 (50 tokens), C priority 2 (1000 tokens), budget 80.
	// Expect A intact, B intact, C truncated to <= 20 tokens.
	a := Section{Name: "a", Content: strings.Repeat("x", tokensToChars(10)), Priority: 0, IsProtected: true}
	b := Section{Name: "b", Content: strings.Repeat("y", tokensToChars(50)), Priority: 1}
	c := Section{Name: "c", Content: strings.Repeat("z", tokensToChars(1000)), Priority: 2}

	out := Enforce([]Section{a, b, c}, 80)
	require := assert.New(t)
	require.Len(out, 3)
	require.Equal(a.Content, out[0].Content)
	require.Equal(b.Content, out[1].Content)
	require.LessOrEqual(EstimateTokens(out[2].Content), 20)
}

func TestEnforceProtectedOverBudgetClampsWithWarning(t *testing.T) {
	a := Section{Name: "a", Content: strings.Repeat("x", 1000), Priority: 0, IsProtected: true}
	out := Enforce([]Section{a}, 5)
	assert.Equal(t, a.Content, out[0].Content)
}

func TestEnforceTotalNeverExceedsBudget(t *testing.T) {
	sections := []Section{
		{Name: "active_tasks", Content: strings.Repeat("a", 2000), Priority: 0},
		{Name: "plans", Content: strings.Repeat("b", 2000), Priority: 1},
		{Name: "recent_context", Content: strings.Repeat("c", 5000), Priority: 2},
	}
	budgetTokens := 200
	out := Enforce(sections, budgetTokens)

	total := 0
	for _, s := range out {
		total += EstimateTokens(s.Content)
	}
	assert.LessOrEqual(t, total, budgetTokens)
}

func TestEnforceActiveTasksAndPlansCappedAt15Percent(t *testing.T) {
	sections := []Section{
		{Name: "active_tasks", Content: strings.Repeat("a", 4000), Priority: 0},
		{Name: "plans", Content: strings.Repeat("b", 4000), Priority: 0},
		{Name: "recent_context", Content: strings.Repeat("c", 4000), Priority: 0},
	}
	budgetTokens := 1000
	out := Enforce(sections, budgetTokens)

	maxAllowed := int(float64(budgetTokens) * 0.15)
	assert.LessOrEqual(t, EstimateTokens(out[0].Content), maxAllowed)
	assert.LessOrEqual(t, EstimateTokens(out[1].Content), maxAllowed)
}

func TestTruncateXMLElementsDropsTrailingWellFormed(t *testing.T) {
	xml := "<A>one</A><B>two</B><C>three</C>"
	s := Section{Name: "x", Content: xml, Priority: 0, IsXML: true}
	out := Enforce([]Section{s}, EstimateTokens("<A>one</A>"))

	assert.True(t, strings.HasPrefix(out[0].Content, "<A>one</A>"))
	assert.False(t, strings.Contains(out[0].Content, "<C>"))
}

func tokensToChars(tokens int) int {
	return int(float64(tokens) * charsPerToken / safetyMargin)
}
