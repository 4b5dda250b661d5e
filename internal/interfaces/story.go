package interfaces

import (
	"context"

	"storyforge/server/internal/models"
)

// ContentGenerator produces schema-constrained JSON story content from
// a system prompt and a user prompt. Implementations are backed by an
// LLM chat completion in JSON-object response mode; callers are
// responsible for schema validation and retry.
type ContentGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error)
}

// RewardGranter credits coins and XP to a player's backing account.
// The engine calls it at terminal finalize and at cash-out and treats
// a returned error as logged-and-continued, never fatal.
type RewardGranter interface {
	Grant(ctx context.Context, accountID string, coins, xp int, activity, note string) (*models.LedgerEntry, error)
}

// PlaythroughMemory stores finished endings and recalls a player's
// history for generation flavor: by recency, or by similarity to a
// query when the player named a theme. Optional collaborator; a nil
// implementation simply disables recall.
type PlaythroughMemory interface {
	StoreEnding(ctx context.Context, s *models.Session, ending string, positive bool) error
	RecallEndings(ctx context.Context, playerID string, limit int) ([]string, error)
	RelatedEndings(ctx context.Context, playerID, query string, limit int) ([]string, error)
}

// Notifier receives session lifecycle events for the presentation feed.
type Notifier interface {
	SessionEvent(event string, s *models.Session, payload map[string]interface{})
}
