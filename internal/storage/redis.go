package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"storyforge/server/internal/config"
	"storyforge/server/internal/interfaces"
	"storyforge/server/internal/models"
)

// Redis key layout for the session cache.
const (
	sessionKeyPrefix = "story:session:"
	sessionIndexFmt  = "story:session:%s:%s" // index name, key
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Put writes the row and its secondary index keys, all with the same TTL.
func (s *RedisStore) Put(ctx context.Context, row *models.SessionRow, ttl time.Duration) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal session row: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, sessionKeyPrefix+row.ID, data, ttl)
	if row.PlayerID != "" {
		pipe.Set(ctx, indexKey(interfaces.SessionIndexPlayer, row.PlayerID), row.ID, ttl)
	}
	if row.MessageID != "" {
		pipe.Set(ctx, indexKey(interfaces.SessionIndexMessage, row.MessageID), row.ID, ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns the cached row, or (nil, nil) on a miss.
func (s *RedisStore) Get(ctx context.Context, id string) (*models.SessionRow, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var row models.SessionRow
	if err := json.Unmarshal(data, &row); err != nil {
		// A corrupt cache entry is treated as a miss; durable storage
		// is authoritative.
		return nil, nil
	}
	return &row, nil
}

// Lookup resolves a secondary index to a session id, or "" on a miss.
func (s *RedisStore) Lookup(ctx context.Context, index, key string) (string, error) {
	id, err := s.client.Get(ctx, indexKey(index, key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes the row and its index keys.
func (s *RedisStore) Delete(ctx context.Context, row *models.SessionRow) error {
	keys := []string{sessionKeyPrefix + row.ID}
	if row.PlayerID != "" {
		keys = append(keys, indexKey(interfaces.SessionIndexPlayer, row.PlayerID))
	}
	if row.MessageID != "" {
		keys = append(keys, indexKey(interfaces.SessionIndexMessage, row.MessageID))
	}
	return s.client.Del(ctx, keys...).Err()
}

func indexKey(index, key string) string {
	return fmt.Sprintf(sessionIndexFmt, index, key)
}
