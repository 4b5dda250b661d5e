package story

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validStory builds a minimal graph that passes every check: one intro,
// one decision, and ten terminals with seven positive endings.
func validStory() *Story {
	nodes := []*Node{
		NewIntro("intro", Text("open"), "d1"),
		NewDecision("d1", Text("pick"), Choice{Next: "end_0"}, Choice{Next: "end_1"}),
	}
	for i := 0; i < 10; i++ {
		nodes = append(nodes, NewTerminal(
			fmt.Sprintf("end_%d", i), Text("done"), Coins(10), i < 7, 1.0))
	}
	return New("test", "Test", "", "intro", nodes)
}

func TestValidateCleanStory(t *testing.T) {
	assert.Empty(t, Validate(validStory()))
}

func TestValidateCollectsAllViolations(t *testing.T) {
	s := New("broken", "Broken", "", "missing-start", []*Node{
		NewIntro("intro", Text("open"), "nowhere"),
		NewDecision("d1", Text("pick"), Choice{Next: "also-nowhere"}, Choice{Next: "intro"}),
		NewPending("decision2_XS", KindDecision),
		NewTerminal("end_0", Text("done"), Coins(0), true, 1.0),
	})

	violations := Validate(s)
	require.NotEmpty(t, violations)

	joined := fmt.Sprint(violations)
	assert.Contains(t, joined, `start node "missing-start"`)
	assert.Contains(t, joined, `references missing node "nowhere"`)
	assert.Contains(t, joined, `references missing node "also-nowhere"`)
	assert.Contains(t, joined, `"decision2_XS" is still pending`)
	assert.Contains(t, joined, "1 terminal nodes, want at least 8")
	assert.GreaterOrEqual(t, len(violations), 5, "validator must not stop at the first problem")
}

func TestValidatePositiveRatioBand(t *testing.T) {
	build := func(positives int) *Story {
		nodes := []*Node{NewIntro("intro", Text("open"), "end_0")}
		for i := 0; i < 10; i++ {
			nodes = append(nodes, NewTerminal(
				fmt.Sprintf("end_%d", i), Text("done"), Coins(0), i < positives, 1.0))
		}
		return New("ratio", "Ratio", "", "intro", nodes)
	}

	assert.Empty(t, Validate(build(6)), "0.60 is inside the band")
	assert.Empty(t, Validate(build(8)), "0.80 is inside the band")

	low := Validate(build(5))
	require.Len(t, low, 1)
	assert.Contains(t, low[0], "positive ending ratio 0.50")

	high := Validate(build(9))
	require.Len(t, high, 1)
	assert.Contains(t, high[0], "positive ending ratio 0.90")
}

func TestValidatePendingNodeSkipsSuccessorCheck(t *testing.T) {
	// A pending node has no successors yet; it must be reported as
	// pending, not as dangling.
	s := New("pending", "Pending", "", "intro", []*Node{
		NewIntro("intro", Text("open"), "p"),
		NewPending("p", KindTerminal),
	})
	violations := Validate(s)
	joined := fmt.Sprint(violations)
	assert.Contains(t, joined, `"p" is still pending`)
	assert.NotContains(t, joined, `"p" references`)
}
