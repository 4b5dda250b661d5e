package story

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.IDs())

	r.Register(NightShift())
	got, ok := r.Get("night-shift")
	require.True(t, ok)
	assert.Equal(t, "The Night Shift", got.Title)
	assert.Equal(t, []string{"night-shift"}, r.IDs())

	r.Unregister("night-shift")
	_, ok = r.Get("night-shift")
	assert.False(t, ok)
}

func TestStoryAddReplacesNode(t *testing.T) {
	s := New("gen", "Gen", "", "intro", []*Node{
		NewIntro("intro", Text("open"), "d1"),
		NewPending("d1", KindDecision),
	})

	before, ok := s.Node("d1")
	require.True(t, ok)
	assert.True(t, before.IsPending())

	s.Add(NewDecision("d1", Text("pick"), Choice{Next: "a"}, Choice{Next: "b"}))

	after, ok := s.Node("d1")
	require.True(t, ok)
	assert.False(t, after.IsPending())
	assert.Equal(t, "pick", after.Text().Resolve())
	assert.Equal(t, 2, s.Len())
}
