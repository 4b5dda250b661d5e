package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Length caps applied to generated content. Validation rejects empty
// required fields and overlong values, burning a retry attempt;
// normalization re-caps lengths as a second line of defense.
const (
	maxTitleLen     = 100
	maxEmojiLen     = 8
	maxNarrativeLen = 1500
	maxLabelLen     = 80
	maxDescLen      = 200
)

// layerContent is one generation layer's decoded payload.
type layerContent interface {
	validate() error
	normalize()
}

type choiceContent struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

type decisionContent struct {
	Text    string        `json:"text"`
	ChoiceX choiceContent `json:"choice_x"`
	ChoiceY choiceContent `json:"choice_y"`
}

// openingContent is the Layer-1 payload: title, intro narrative and the
// first decision.
type openingContent struct {
	Title    string          `json:"title"`
	Emoji    string          `json:"emoji"`
	Intro    string          `json:"intro"`
	Decision decisionContent `json:"decision"`
}

// branchContent is the Layer-2 payload: the first outcome's narrative
// and the second decision.
type branchContent struct {
	Outcome  string          `json:"outcome"`
	Decision decisionContent `json:"decision"`
}

// endingContent is the Layer-3 payload: the final outcome's narrative
// and the ending.
type endingContent struct {
	Outcome string `json:"outcome"`
	Ending  string `json:"ending"`
}

func (d *decisionContent) problems(prefix string) []string {
	var p []string
	p = requiredField(p, prefix+".text", d.Text, maxNarrativeLen)
	p = requiredField(p, prefix+".choice_x.label", d.ChoiceX.Label, maxLabelLen)
	p = boundedField(p, prefix+".choice_x.description", d.ChoiceX.Description, maxDescLen)
	p = requiredField(p, prefix+".choice_y.label", d.ChoiceY.Label, maxLabelLen)
	p = boundedField(p, prefix+".choice_y.description", d.ChoiceY.Description, maxDescLen)
	return p
}

func (d *decisionContent) normalize() {
	d.Text = truncate(d.Text, maxNarrativeLen)
	d.ChoiceX.Label = truncate(d.ChoiceX.Label, maxLabelLen)
	d.ChoiceX.Description = truncate(d.ChoiceX.Description, maxDescLen)
	d.ChoiceY.Label = truncate(d.ChoiceY.Label, maxLabelLen)
	d.ChoiceY.Description = truncate(d.ChoiceY.Description, maxDescLen)
}

func (c *openingContent) validate() error {
	var p []string
	p = requiredField(p, "title", c.Title, maxTitleLen)
	p = boundedField(p, "emoji", c.Emoji, maxEmojiLen)
	p = requiredField(p, "intro", c.Intro, maxNarrativeLen)
	p = append(p, c.Decision.problems("decision")...)
	return joinProblems(p)
}

func (c *openingContent) normalize() {
	c.Title = truncate(c.Title, maxTitleLen)
	c.Emoji = truncate(c.Emoji, maxEmojiLen)
	c.Intro = truncate(c.Intro, maxNarrativeLen)
	c.Decision.normalize()
}

func (c *branchContent) validate() error {
	var p []string
	p = requiredField(p, "outcome", c.Outcome, maxNarrativeLen)
	p = append(p, c.Decision.problems("decision")...)
	return joinProblems(p)
}

func (c *branchContent) normalize() {
	c.Outcome = truncate(c.Outcome, maxNarrativeLen)
	c.Decision.normalize()
}

func (c *endingContent) validate() error {
	var p []string
	p = requiredField(p, "outcome", c.Outcome, maxNarrativeLen)
	p = requiredField(p, "ending", c.Ending, maxNarrativeLen)
	return joinProblems(p)
}

func (c *endingContent) normalize() {
	c.Outcome = truncate(c.Outcome, maxNarrativeLen)
	c.Ending = truncate(c.Ending, maxNarrativeLen)
}

// requiredField flags an empty or overlong value. boundedField only
// checks length, for fields allowed to be empty.
func requiredField(p []string, name, v string, max int) []string {
	if strings.TrimSpace(v) == "" {
		return append(p, name+" is empty")
	}
	return boundedField(p, name, v, max)
}

func boundedField(p []string, name, v string, max int) []string {
	if len([]rune(v)) > max {
		p = append(p, fmt.Sprintf("%s exceeds %d characters", name, max))
	}
	return p
}

func joinProblems(p []string) error {
	if len(p) == 0 {
		return nil
	}
	return errors.New(strings.Join(p, "; "))
}

// truncate caps a string at max runes without splitting a rune.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
