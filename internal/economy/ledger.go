// Package economy credits playthrough rewards to player accounts.
package economy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storyforge/server/internal/models"
)

// LedgerGranter records every grant as an append-only ledger row. It is
// the durable source of truth for coins and XP earned through stories;
// balances are derived by summing rows.
type LedgerGranter struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewLedgerGranter(db *gorm.DB, log *zap.Logger) *LedgerGranter {
	return &LedgerGranter{db: db, log: log}
}

// Grant appends one ledger entry. Coins may be negative; XP never is.
func (g *LedgerGranter) Grant(ctx context.Context, accountID string, coins, xp int, activity, note string) (*models.LedgerEntry, error) {
	if accountID == "" {
		return nil, fmt.Errorf("grant: empty account id")
	}
	if xp < 0 {
		xp = 0
	}

	entry := &models.LedgerEntry{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Coins:     coins,
		XP:        xp,
		Activity:  activity,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to write ledger entry: %w", err)
	}

	g.log.Info("reward granted",
		zap.String("account_id", accountID),
		zap.Int("coins", coins),
		zap.Int("xp", xp),
		zap.String("activity", activity))
	return entry, nil
}

// Balance sums an account's ledger.
func (g *LedgerGranter) Balance(ctx context.Context, accountID string) (coins, xp int, err error) {
	row := struct {
		Coins int
		XP    int
	}{}
	err = g.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(coins),0) AS coins, COALESCE(SUM(xp),0) AS xp").
		Where("account_id = ?", accountID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum ledger for %s: %w", accountID, err)
	}
	return row.Coins, row.XP, nil
}

// History returns an account's most recent entries, newest first.
func (g *LedgerGranter) History(ctx context.Context, accountID string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []models.LedgerEntry
	err := g.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger history for %s: %w", accountID, err)
	}
	return entries, nil
}
