package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Journal entry kinds.
const (
	JournalIntro  = "intro"
	JournalChoice = "choice"
	JournalRoll   = "roll"
	JournalEnding = "ending"
)

// RollResult records one resolved chance gate.
type RollResult struct {
	Rolled  float64 `json:"rolled"`
	Needed  float64 `json:"needed"`
	Success bool    `json:"success"`
}

// JournalEntry is one step of the human-readable playthrough recap.
type JournalEntry struct {
	Kind        string      `json:"kind"`
	NodeID      string      `json:"node_id"`
	Text        string      `json:"text,omitempty"`
	Choice      string      `json:"choice,omitempty"`
	ChoiceLabel string      `json:"choice_label,omitempty"`
	OtherLabel  string      `json:"other_label,omitempty"`
	Roll        *RollResult `json:"roll,omitempty"`
	At          time.Time   `json:"at"`
}

// GenContext accumulates the narrative fragments an incrementally
// generated story needs to prompt its next layer.
type GenContext struct {
	Theme          string `json:"theme,omitempty"`
	Opening        string `json:"opening"`
	FirstDecision  string `json:"first_decision"`
	FirstChoice    string `json:"first_choice,omitempty"`
	FirstSuccess   bool   `json:"first_success,omitempty"`
	FirstOutcome   string `json:"first_outcome,omitempty"`
	SecondDecision string `json:"second_decision,omitempty"`
	SecondChoice   string `json:"second_choice,omitempty"`
}

// Session is one player's mutable progress through a story instance.
// The whole struct is serialized into SessionRow.StateJSON; only the
// fields the store indexes on are mirrored as row columns.
type Session struct {
	ID            string `json:"id"`
	PlayerID      string `json:"player_id"`
	AccountID     string `json:"account_id"`
	StoryID       string `json:"story_id"`
	CurrentNodeID string `json:"current_node_id"`

	Coins   int            `json:"coins"`
	Path    []string       `json:"path"`
	Journal []JournalEntry `json:"journal"`

	StartedAt    time.Time `json:"started_at"`
	LastActionAt time.Time `json:"last_action_at"`

	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`

	PlayerLevel int `json:"player_level"`

	// Resolved value caches: a randomized narrative or coin delta is
	// drawn once per node per session and re-read from here after that.
	ResolvedText  map[string]string `json:"resolved_text,omitempty"`
	ResolvedCoins map[string]int    `json:"resolved_coins,omitempty"`

	// Processing is the durable re-entrancy guard. It survives a
	// restart mid-action so a crash-then-retry cannot double-grant.
	Processing   bool      `json:"processing"`
	ProcessingAt time.Time `json:"processing_at,omitempty"`

	Gen *GenContext `json:"gen,omitempty"`
}

// PathKey joins the recorded choice/roll tokens ("X", "S", ...) into
// the compact trace used for generated node ids.
func (s *Session) PathKey() string {
	return strings.Join(s.Path, "")
}

// Touch bumps the last-interaction timestamp.
func (s *Session) Touch() {
	s.LastActionAt = time.Now().UTC()
}

// Expired reports whether the session has been inactive longer than ttl.
func (s *Session) Expired(ttl time.Duration) bool {
	return time.Since(s.LastActionAt) > ttl
}

// SessionRow is the durable storage shape of a Session: indexed columns
// plus the serialized session body.
type SessionRow struct {
	ID           string    `gorm:"primaryKey;size:64"`
	PlayerID     string    `gorm:"uniqueIndex;size:64"`
	MessageID    string    `gorm:"index;size:64"`
	StateJSON    string    `gorm:"type:text"`
	Processing   bool
	ProcessingAt time.Time
	LastActionAt time.Time `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Migrate creates the tables this package persists to.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&SessionRow{}, &LedgerEntry{})
}
