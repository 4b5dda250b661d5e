package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"storyforge/server/internal/models"
)

func TestOpeningPrompt(t *testing.T) {
	system, user := Opening("", nil)
	assert.Contains(t, system, "JSON")
	assert.NotContains(t, user, "{{", "all placeholders are rendered")
	assert.NotContains(t, user, "Theme request")
	assert.NotContains(t, user, "previously finished")

	_, user = Opening("a heist gone sideways", []string{"You got the loot.", "You got caught."})
	assert.Contains(t, user, "a heist gone sideways")
	assert.Contains(t, user, "- You got the loot.")
	assert.Contains(t, user, "- You got caught.")
}

func TestBranchPrompt(t *testing.T) {
	gen := &models.GenContext{
		Opening:       "The crew assembles.",
		FirstDecision: "Door or roof?",
	}

	_, user := Branch(gen, "Side door", true)
	assert.Contains(t, user, "The crew assembles.")
	assert.Contains(t, user, "Door or roof?")
	assert.Contains(t, user, `chose "Side door"`)
	assert.Contains(t, user, "succeeded")

	_, user = Branch(gen, "Roof line", false)
	assert.Contains(t, user, "went wrong")
}

func TestEndingPrompt(t *testing.T) {
	gen := &models.GenContext{
		Opening:        "The crew assembles.",
		FirstDecision:  "Door or roof?",
		FirstChoice:    "Side door",
		FirstSuccess:   true,
		FirstOutcome:   "The lock gives.",
		SecondDecision: "Alarms or cameras?",
	}

	_, user := Ending(gen, "Kill the alarms", false, true)
	assert.Contains(t, user, `chose "Side door" and it succeeded`)
	assert.Contains(t, user, "The lock gives.")
	assert.Contains(t, user, "Alarms or cameras?")
	assert.Contains(t, user, `chose "Kill the alarms" and it went wrong`)
	assert.Contains(t, user, "hard-earned win")

	_, user = Ending(gen, "Kill the alarms", false, false)
	assert.Contains(t, user, "laugh about later")
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	out := render("hello {{name}}, {{unknown}}", map[string]string{"name": "world"})
	assert.Equal(t, "hello world, {{unknown}}", out)
}

func TestPromptsForbidMechanicsTalk(t *testing.T) {
	// Every system prompt instructs the model to keep numbers out of
	// the narrative; the engine owns all mechanics.
	for _, sys := range []string{systemOpening, systemBranch, systemEnding} {
		assert.True(t, strings.Contains(sys, "Never mention money amounts"))
	}
}
