// Package prompts builds the system and user prompts for the three
// incremental story generation layers.
package prompts

import (
	"fmt"
	"regexp"
	"strings"

	"storyforge/server/internal/models"
)

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// render substitutes {{name}} placeholders from vars, leaving unknown
// placeholders intact.
func render(tmpl string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

const systemOpening = `You are the narrator of a short, punchy choose-your-path story about an odd job or small adventure. Tone: wry, grounded, a little dramatic. Never mention money amounts, probabilities, or game mechanics; the game supplies all numbers.

Respond with a single JSON object, no prose around it:
{
  "title": "story title, at most 100 characters",
  "emoji": "one emoji for the story",
  "intro": "opening narrative, 2-4 sentences, at most 1500 characters",
  "decision": {
    "text": "the situation forcing a choice, 1-3 sentences",
    "choice_x": {"label": "button label, at most 80 characters", "description": "one-line flavor, at most 200 characters"},
    "choice_y": {"label": "button label, at most 80 characters", "description": "one-line flavor, at most 200 characters"}
  }
}`

const userOpening = `Write the opening of a new story.{{theme_line}}{{history_line}}`

const systemBranch = `You are continuing a choose-your-path story. Tone: wry, grounded, a little dramatic. Never mention money amounts, probabilities, or game mechanics.

Respond with a single JSON object, no prose around it:
{
  "outcome": "what happened as a result of the player's last choice, 2-3 sentences, at most 1500 characters",
  "decision": {
    "text": "the next situation forcing a choice, 1-3 sentences",
    "choice_x": {"label": "button label, at most 80 characters", "description": "one-line flavor, at most 200 characters"},
    "choice_y": {"label": "button label, at most 80 characters", "description": "one-line flavor, at most 200 characters"}
  }
}`

const userBranch = `The story so far:

Opening: {{opening}}

Situation: {{first_decision}}

The player chose "{{choice}}" and it {{result}}.

Write the outcome of that choice and the next decision it leads to.`

const systemEnding = `You are writing the final beat of a choose-your-path story. Tone: wry, grounded, a little dramatic. Never mention money amounts, probabilities, or game mechanics.

Respond with a single JSON object, no prose around it:
{
  "outcome": "what happened as a result of the player's last choice, 1-2 sentences, at most 1500 characters",
  "ending": "the story's ending, 2-4 sentences wrapping everything up, at most 1500 characters"
}`

const userEnding = `The story so far:

Opening: {{opening}}

First situation: {{first_decision}}
The player chose "{{first_choice}}" and it {{first_result}}. {{first_outcome}}

Second situation: {{second_decision}}
The player then chose "{{choice}}" and it {{result}}.

The ending should feel {{framing}}. Write the outcome of the final choice and the ending.`

// Opening returns the Layer-1 prompts. pastEndings, when present, are
// folded in so new stories can nod at the player's history.
func Opening(theme string, pastEndings []string) (system, user string) {
	vars := map[string]string{"theme_line": "", "history_line": ""}
	if theme != "" {
		vars["theme_line"] = fmt.Sprintf(" Theme request from the player: %s.", theme)
	}
	if len(pastEndings) > 0 {
		vars["history_line"] = fmt.Sprintf(
			"\nThe same player previously finished stories that ended like this; a light callback is welcome but optional:\n- %s",
			strings.Join(pastEndings, "\n- "))
	}
	return systemOpening, render(userOpening, vars)
}

// Branch returns the Layer-2 prompts for the branch the player's first
// roll actually reached.
func Branch(gen *models.GenContext, choiceLabel string, success bool) (system, user string) {
	return systemBranch, render(userBranch, map[string]string{
		"opening":        gen.Opening,
		"first_decision": gen.FirstDecision,
		"choice":         choiceLabel,
		"result":         resultWord(success),
	})
}

// Ending returns the Layer-3 prompts. The positive flag conveys framing
// only; the terminal's numbers come from engine policy.
func Ending(gen *models.GenContext, choiceLabel string, success, positive bool) (system, user string) {
	framing := "like a hard-earned win"
	if !positive {
		framing = "like a loss the player can laugh about later"
	}
	return systemEnding, render(userEnding, map[string]string{
		"opening":         gen.Opening,
		"first_decision":  gen.FirstDecision,
		"first_choice":    gen.FirstChoice,
		"first_result":    resultWord(gen.FirstSuccess),
		"first_outcome":   gen.FirstOutcome,
		"second_decision": gen.SecondDecision,
		"choice":          choiceLabel,
		"result":          resultWord(success),
		"framing":         framing,
	})
}

func resultWord(success bool) string {
	if success {
		return "succeeded"
	}
	return "went wrong"
}
