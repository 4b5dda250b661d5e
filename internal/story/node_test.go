package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeKindPredicates(t *testing.T) {
	intro := NewIntro("intro", Text("opening"), "d1")
	decision := NewDecision("d1", Text("pick"), Choice{Next: "o1"}, Choice{Next: "o2"})
	outcome := NewOutcome("o1", Text("rolled"), 70, "end_a", "end_b")
	terminal := NewTerminal("end_a", Text("done"), Coins(100), true, 1.0)

	assert.True(t, intro.IsIntro())
	assert.True(t, decision.IsDecision())
	assert.True(t, outcome.IsOutcome())
	assert.True(t, terminal.IsTerminal())

	assert.False(t, intro.IsDecision())
	assert.False(t, terminal.IsOutcome())

	for _, n := range []*Node{intro, decision, outcome, terminal} {
		assert.False(t, n.IsPending(), "constructed node %s must be generated", n.ID)
	}
}

func TestPendingNode(t *testing.T) {
	p := NewPending("decision2_XS", KindDecision)
	assert.True(t, p.IsPending())
	assert.True(t, p.IsDecision())
	assert.Nil(t, p.Decision)
}

func TestDecisionChoiceLookup(t *testing.T) {
	x := Choice{Label: "left", Next: "o1"}
	y := Choice{Label: "right", Next: "o2"}
	d := NewDecision("d1", Text("pick"), x, y)

	got, ok := d.Decision.Choice(ChoiceX)
	require.True(t, ok)
	assert.Equal(t, "left", got.Label)

	got, ok = d.Decision.Choice(ChoiceY)
	require.True(t, ok)
	assert.Equal(t, "right", got.Label)

	_, ok = d.Decision.Choice("Z")
	assert.False(t, ok)

	assert.Equal(t, "right", d.Decision.Other(ChoiceX).Label)
	assert.Equal(t, "left", d.Decision.Other(ChoiceY).Label)
}

func TestSuccessors(t *testing.T) {
	assert.Equal(t, []string{"d1"}, NewIntro("intro", Text(""), "d1").Successors())
	assert.Equal(t, []string{"o1", "o2"},
		NewDecision("d1", Text(""), Choice{Next: "o1"}, Choice{Next: "o2"}).Successors())
	assert.Equal(t, []string{"win", "lose"},
		NewOutcome("o1", Text(""), 70, "win", "lose").Successors())
	assert.Empty(t, NewTerminal("end", Text(""), Coins(0), true, 1.0).Successors())
}

func TestTextValue(t *testing.T) {
	fixed := Text("constant")
	assert.False(t, fixed.Dynamic())
	assert.Equal(t, "constant", fixed.Resolve())

	calls := 0
	dyn := TextFn(func() string {
		calls++
		return "draw"
	})
	assert.True(t, dyn.Dynamic())
	assert.Equal(t, "draw", dyn.Resolve())
	dyn.Resolve()
	assert.Equal(t, 2, calls, "dynamic values draw fresh on every Resolve")
}

func TestCoinValue(t *testing.T) {
	var unset CoinValue
	assert.False(t, unset.IsSet())

	fixed := Coins(-60)
	assert.True(t, fixed.IsSet())
	assert.False(t, fixed.Dynamic())
	assert.Equal(t, -60, fixed.Resolve())

	dyn := CoinsFn(func() int { return 25 })
	assert.True(t, dyn.IsSet())
	assert.True(t, dyn.Dynamic())
	assert.Equal(t, 25, dyn.Resolve())
}

func TestNodeTextAndCoinDelta(t *testing.T) {
	terminal := NewTerminal("end", Text("the end"), Coins(300), true, 1.5)
	assert.Equal(t, "the end", terminal.Text().Resolve())
	assert.Equal(t, 300, terminal.CoinDelta().Resolve())

	decision := NewDecision("d1", Text("pick"), Choice{}, Choice{})
	assert.Equal(t, "pick", decision.Text().Resolve())
	assert.False(t, decision.CoinDelta().IsSet(), "decision nodes carry no coin delta")
}
