package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyforge/server/internal/interfaces"
	"storyforge/server/internal/models"
)

var (
	// ErrSessionNotFound is returned when no active session matches the
	// lookup, including sessions that were lazily expired on load.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStillProcessing is returned when an action arrives for a
	// session whose processing lock is already held.
	ErrStillProcessing = errors.New("session action already in progress")
)

// SessionStore persists sessions through a cache layered over durable
// storage. Every read checks the cache first and backfills it on a
// durable hit; every write lands in durable storage before the cache so
// a process restart loses nothing.
type SessionStore struct {
	durable interfaces.SessionDurable
	cache   interfaces.SessionCache
	log     *zap.Logger

	ttl         time.Duration
	lockTimeout time.Duration
}

func NewSessionStore(durable interfaces.SessionDurable, cache interfaces.SessionCache, ttl, lockTimeout time.Duration, log *zap.Logger) *SessionStore {
	return &SessionStore{
		durable:     durable,
		cache:       cache,
		log:         log,
		ttl:         ttl,
		lockTimeout: lockTimeout,
	}
}

// Create allocates an id if needed, initializes timestamps, and persists
// the session with its player and message indexes.
func (st *SessionStore) Create(ctx context.Context, s *models.Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if s.StartedAt.IsZero() {
		s.StartedAt = now
	}
	s.LastActionAt = now
	if s.ResolvedText == nil {
		s.ResolvedText = make(map[string]string)
	}
	if s.ResolvedCoins == nil {
		s.ResolvedCoins = make(map[string]int)
	}
	return st.write(ctx, s)
}

// Get loads a session by id. Sessions past the inactivity window are
// purged on load and reported as not found.
func (st *SessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	row, err := st.cache.Get(ctx, id)
	if err != nil {
		st.log.Warn("session cache read failed", zap.String("session_id", id), zap.Error(err))
		row = nil
	}
	if row == nil {
		row, err = st.durable.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if row != nil {
			st.backfill(ctx, row)
		}
	}
	return st.restore(ctx, row)
}

// GetByPlayer returns the player's active session, if any.
func (st *SessionStore) GetByPlayer(ctx context.Context, playerID string) (*models.Session, error) {
	return st.getByIndex(ctx, interfaces.SessionIndexPlayer, playerID, st.durable.GetByPlayer)
}

// GetByMessage reconstructs a session from the originating message id,
// used when the presentation layer re-renders an existing interaction.
func (st *SessionStore) GetByMessage(ctx context.Context, messageID string) (*models.Session, error) {
	return st.getByIndex(ctx, interfaces.SessionIndexMessage, messageID, st.durable.GetByMessage)
}

func (st *SessionStore) getByIndex(ctx context.Context, index, key string, durableLookup func(context.Context, string) (*models.SessionRow, error)) (*models.Session, error) {
	if id, err := st.cache.Lookup(ctx, index, key); err == nil && id != "" {
		if row, err := st.cache.Get(ctx, id); err == nil && row != nil {
			return st.restore(ctx, row)
		}
	}

	row, err := durableLookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if row != nil {
		st.backfill(ctx, row)
	}
	return st.restore(ctx, row)
}

// Update persists the full session state and bumps the interaction
// timestamp.
func (st *SessionStore) Update(ctx context.Context, s *models.Session) error {
	s.Touch()
	return st.write(ctx, s)
}

// Delete removes the session from durable storage, the cache, and all
// indexes.
func (st *SessionStore) Delete(ctx context.Context, s *models.Session) error {
	if err := st.durable.Delete(ctx, s.ID); err != nil {
		return err
	}
	if err := st.cache.Delete(ctx, rowOf(s)); err != nil {
		st.log.Warn("session cache delete failed", zap.String("session_id", s.ID), zap.Error(err))
	}
	return nil
}

// ListActive returns every non-expired session, used at process startup
// to rehydrate.
func (st *SessionStore) ListActive(ctx context.Context) ([]*models.Session, error) {
	rows, err := st.durable.List(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]*models.Session, 0, len(rows))
	for _, row := range rows {
		s, err := decodeRow(row)
		if err != nil {
			st.log.Warn("skipping undecodable session row", zap.String("session_id", row.ID), zap.Error(err))
			continue
		}
		if s.Expired(st.ttl) {
			continue
		}
		st.backfill(ctx, row)
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// CleanupExpired deletes sessions whose last interaction is older than
// the inactivity window and returns the number deleted.
func (st *SessionStore) CleanupExpired(ctx context.Context) (int, error) {
	n, err := st.durable.DeleteStale(ctx, time.Now().UTC().Add(-st.ttl))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// StartCleanupLoop purges expired sessions on an interval until the
// context is cancelled.
func (st *SessionStore) StartCleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.CleanupExpired(ctx)
			if err != nil {
				st.log.Warn("session cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				st.log.Info("purged expired sessions", zap.Int("count", n))
			}
		}
	}
}

// SetProcessing acquires the re-entrancy lock through a conditional
// durable write, so two actions racing on the same session cannot both
// win even when each loaded its own copy first. A lock held longer than
// the lock timeout is presumed to belong to a crashed action and is
// taken over.
func (st *SessionStore) SetProcessing(ctx context.Context, s *models.Session) error {
	now := time.Now().UTC()
	ok, err := st.durable.AcquireProcessing(ctx, s.ID, now, now.Add(-st.lockTimeout))
	if err != nil {
		return err
	}
	if !ok {
		if row, gerr := st.durable.Get(ctx, s.ID); gerr == nil && row == nil {
			return ErrSessionNotFound
		}
		return ErrStillProcessing
	}
	s.Processing = true
	s.ProcessingAt = now
	return st.write(ctx, s)
}

// ClearProcessing releases the re-entrancy lock.
func (st *SessionStore) ClearProcessing(ctx context.Context, s *models.Session) error {
	s.Processing = false
	s.ProcessingAt = time.Time{}
	return st.write(ctx, s)
}

func (st *SessionStore) write(ctx context.Context, s *models.Session) error {
	row := rowOf(s)
	state, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	row.StateJSON = string(state)

	if err := st.durable.Upsert(ctx, row); err != nil {
		return err
	}
	if err := st.cache.Put(ctx, row, st.cacheTTL()); err != nil {
		st.log.Warn("session cache write failed", zap.String("session_id", s.ID), zap.Error(err))
	}
	return nil
}

// restore decodes a row into a session, enforcing lazy expiry.
func (st *SessionStore) restore(ctx context.Context, row *models.SessionRow) (*models.Session, error) {
	if row == nil {
		return nil, ErrSessionNotFound
	}
	s, err := decodeRow(row)
	if err != nil {
		return nil, err
	}
	if s.Expired(st.ttl) {
		if err := st.Delete(ctx, s); err != nil {
			st.log.Warn("failed to purge expired session", zap.String("session_id", s.ID), zap.Error(err))
		}
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (st *SessionStore) backfill(ctx context.Context, row *models.SessionRow) {
	if err := st.cache.Put(ctx, row, st.cacheTTL()); err != nil {
		st.log.Warn("session cache backfill failed", zap.String("session_id", row.ID), zap.Error(err))
	}
}

// cacheTTL leaves slack past the inactivity window so lazy expiry on
// load, not cache eviction, decides when a session dies.
func (st *SessionStore) cacheTTL() time.Duration {
	return st.ttl + time.Hour
}

func rowOf(s *models.Session) *models.SessionRow {
	return &models.SessionRow{
		ID:           s.ID,
		PlayerID:     s.PlayerID,
		MessageID:    s.MessageID,
		Processing:   s.Processing,
		ProcessingAt: s.ProcessingAt,
		LastActionAt: s.LastActionAt,
	}
}

func decodeRow(row *models.SessionRow) (*models.Session, error) {
	var s models.Session
	if err := json.Unmarshal([]byte(row.StateJSON), &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", row.ID, err)
	}
	// The row columns are authoritative for the lock and timestamps;
	// they may have been written by another process since the body was
	// serialized.
	s.Processing = row.Processing
	s.ProcessingAt = row.ProcessingAt
	s.LastActionAt = row.LastActionAt
	return &s, nil
}
