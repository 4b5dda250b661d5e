package interfaces

import (
	"context"
	"time"

	"storyforge/server/internal/models"
)

// Secondary index names for session lookup.
const (
	SessionIndexPlayer  = "player"
	SessionIndexMessage = "message"
)

// SessionDurable is the durable row store behind the session cache.
// A missing row is reported as (nil, nil), not an error.
type SessionDurable interface {
	Upsert(ctx context.Context, row *models.SessionRow) error
	// AcquireProcessing conditionally marks the row as processing: it
	// succeeds only when the row exists and is either unlocked or was
	// locked before staleBefore. The check and the write are one atomic
	// operation against the store.
	AcquireProcessing(ctx context.Context, id string, at, staleBefore time.Time) (bool, error)
	Get(ctx context.Context, id string) (*models.SessionRow, error)
	GetByPlayer(ctx context.Context, playerID string) (*models.SessionRow, error)
	GetByMessage(ctx context.Context, messageID string) (*models.SessionRow, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.SessionRow, error)
	DeleteStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// SessionCache mirrors session rows in a fast store. Misses are
// (nil, nil) / ("", nil), not errors.
type SessionCache interface {
	Put(ctx context.Context, row *models.SessionRow, ttl time.Duration) error
	Get(ctx context.Context, id string) (*models.SessionRow, error)
	Lookup(ctx context.Context, index, key string) (string, error)
	Delete(ctx context.Context, row *models.SessionRow) error
}
