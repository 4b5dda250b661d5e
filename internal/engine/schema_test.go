package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpeningContentValidation(t *testing.T) {
	var c openingContent
	require.NoError(t, json.Unmarshal([]byte(openingJSON), &c))
	assert.NoError(t, c.validate())
}

func TestValidationCollectsEveryProblem(t *testing.T) {
	c := openingContent{}
	err := c.validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "title is empty")
	assert.Contains(t, msg, "intro is empty")
	assert.Contains(t, msg, "decision.text is empty")
	assert.Contains(t, msg, "decision.choice_x.label is empty")
	assert.Contains(t, msg, "decision.choice_y.label is empty")
}

func TestValidationRejectsOverlongFields(t *testing.T) {
	var c openingContent
	require.NoError(t, json.Unmarshal([]byte(openingJSON), &c))
	c.Title = strings.Repeat("a", maxTitleLen+1)
	c.Decision.ChoiceX.Label = strings.Repeat("b", maxLabelLen+1)
	c.Decision.ChoiceY.Description = strings.Repeat("c", maxDescLen+1)

	err := c.validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "title exceeds 100 characters")
	assert.Contains(t, msg, "decision.choice_x.label exceeds 80 characters")
	assert.Contains(t, msg, "decision.choice_y.description exceeds 200 characters")
}

func TestBranchContentValidation(t *testing.T) {
	var c branchContent
	require.NoError(t, json.Unmarshal([]byte(branchJSON), &c))
	assert.NoError(t, c.validate())

	c.Outcome = "   "
	err := c.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outcome is empty")
}

func TestEndingContentValidation(t *testing.T) {
	var c endingContent
	require.NoError(t, json.Unmarshal([]byte(endingJSON), &c))
	assert.NoError(t, c.validate())

	c.Ending = ""
	err := c.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ending is empty")
}

func TestNormalizeTruncates(t *testing.T) {
	c := openingContent{
		Title: strings.Repeat("a", 200),
		Emoji: strings.Repeat("💼", 10),
		Intro: strings.Repeat("b", 2000),
		Decision: decisionContent{
			Text:    strings.Repeat("c", 2000),
			ChoiceX: choiceContent{Label: strings.Repeat("d", 200), Description: strings.Repeat("e", 400)},
			ChoiceY: choiceContent{Label: "ok", Description: "ok"},
		},
	}
	c.normalize()

	assert.Len(t, []rune(c.Title), maxTitleLen)
	assert.Len(t, []rune(c.Emoji), maxEmojiLen)
	assert.Len(t, []rune(c.Intro), maxNarrativeLen)
	assert.Len(t, []rune(c.Decision.Text), maxNarrativeLen)
	assert.Len(t, []rune(c.Decision.ChoiceX.Label), maxLabelLen)
	assert.Len(t, []rune(c.Decision.ChoiceX.Description), maxDescLen)
	assert.Equal(t, "ok", c.Decision.ChoiceY.Label)
}

func TestTruncateIsRuneSafe(t *testing.T) {
	s := strings.Repeat("夜", 10)
	got := truncate(s, 4)
	assert.Equal(t, strings.Repeat("夜", 4), got)
	assert.Equal(t, s, truncate(s, 10))
	assert.Equal(t, s, truncate(s, 100))
}
