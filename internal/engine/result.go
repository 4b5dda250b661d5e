package engine

import (
	"storyforge/server/internal/models"
	"storyforge/server/internal/story"
)

// FinalSummary describes a finished playthrough.
type FinalSummary struct {
	Coins      int      `json:"coins"`
	XP         int      `json:"xp"`
	Positive   bool     `json:"positive"`
	TerminalID string   `json:"terminal_id,omitempty"`
	Path       []string `json:"path"`
	CashedOut  bool     `json:"cashed_out,omitempty"`
}

// Result is what one engine action hands back to the presentation
// layer: enough to render narrative and choice buttons without the
// engine knowing anything about the UI.
type Result struct {
	// Session is the post-action state; nil fields of interest are
	// preserved even after the session row was deleted on completion.
	Session *models.Session

	// Node is the node now awaiting input, nil when the story is done.
	Node *story.Node

	// NodeText is Node's resolved narrative.
	NodeText string

	// Text is the narrative produced by this action (intro, outcome,
	// or ending beat).
	Text string

	// Roll is set when this action resolved a chance gate.
	Roll *models.RollResult

	Done      bool
	Cancelled bool

	// Final is set when the story finished by terminal or cash-out.
	Final *FinalSummary
}
