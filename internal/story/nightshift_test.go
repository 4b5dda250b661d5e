package story

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNightShiftValidates(t *testing.T) {
	assert.Empty(t, Validate(NightShift()))
}

func TestNightShiftShape(t *testing.T) {
	s := NightShift()

	start, ok := s.Node(s.Start)
	require.True(t, ok)
	assert.True(t, start.IsIntro())

	terminals, positive := 0, 0
	for _, n := range s.Nodes() {
		if n.IsTerminal() {
			terminals++
			if n.Terminal.Positive {
				positive++
			}
		}
	}
	assert.Equal(t, 11, terminals)
	assert.Equal(t, 7, positive)

	ratio := float64(positive) / float64(terminals)
	assert.GreaterOrEqual(t, ratio, MinPositiveRatio)
	assert.LessOrEqual(t, ratio, MaxPositiveRatio)
}

func TestNightShiftDynamicValues(t *testing.T) {
	s := NightShift()

	intro, ok := s.Node("intro")
	require.True(t, ok)
	assert.True(t, intro.Text().Dynamic())
	assert.True(t, strings.Contains(intro.Text().Resolve(), "trucks"))

	o1x, ok := s.Node("outcome_1x")
	require.True(t, ok)
	require.True(t, o1x.CoinDelta().IsSet())
	assert.True(t, o1x.CoinDelta().Dynamic())
	for i := 0; i < 50; i++ {
		v := o1x.CoinDelta().Resolve()
		assert.GreaterOrEqual(t, v, 10)
		assert.LessOrEqual(t, v, 30)
	}
}

func TestNightShiftDirectTerminalChoices(t *testing.T) {
	// Some cautious choices skip the roll and land straight on an
	// ending.
	s := NightShift()
	for decisionID, want := range map[string]string{
		"decision_2a": "end_quiet",
		"decision_2b": "end_slink",
		"decision_2d": "end_walkaway",
	} {
		d, ok := s.Node(decisionID)
		require.True(t, ok, decisionID)
		next, ok := s.Node(d.Decision.ChoiceY.Next)
		require.True(t, ok, decisionID)
		assert.True(t, next.IsTerminal())
		assert.Equal(t, want, next.ID)
	}
}
