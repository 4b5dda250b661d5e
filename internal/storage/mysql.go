package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storyforge/server/internal/config"
	"storyforge/server/internal/models"
)

type MySQLStore struct {
	db *gorm.DB
}

func NewMySQLStore(cfg config.MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := models.Migrate(db); err != nil {
		return nil, err
	}

	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *MySQLStore) GetDB() *gorm.DB {
	return s.db
}

// SessionRows is the durable session store over MySQL.
type SessionRows struct {
	db *gorm.DB
}

func NewSessionRows(db *gorm.DB) *SessionRows {
	return &SessionRows{db: db}
}

func (r *SessionRows) Upsert(ctx context.Context, row *models.SessionRow) error {
	return r.db.WithContext(ctx).Save(row).Error
}

// AcquireProcessing is a single conditional UPDATE so concurrent
// actions on one session cannot both win the lock.
func (r *SessionRows) AcquireProcessing(ctx context.Context, id string, at, staleBefore time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SessionRow{}).
		Where("id = ? AND (processing = ? OR processing_at < ?)", id, false, staleBefore).
		Updates(map[string]interface{}{"processing": true, "processing_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *SessionRows) Get(ctx context.Context, id string) (*models.SessionRow, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *SessionRows) GetByPlayer(ctx context.Context, playerID string) (*models.SessionRow, error) {
	return r.first(ctx, "player_id = ?", playerID)
}

func (r *SessionRows) GetByMessage(ctx context.Context, messageID string) (*models.SessionRow, error) {
	return r.first(ctx, "message_id = ?", messageID)
}

func (r *SessionRows) first(ctx context.Context, query string, arg string) (*models.SessionRow, error) {
	var row models.SessionRow
	err := r.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *SessionRows) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.SessionRow{}).Error
}

func (r *SessionRows) List(ctx context.Context) ([]*models.SessionRow, error) {
	var rows []*models.SessionRow
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SessionRows) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("last_action_at < ?", olderThan).Delete(&models.SessionRow{})
	return res.RowsAffected, res.Error
}
