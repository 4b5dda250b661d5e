// Package rag stores finished playthrough endings as embedded vectors
// so new generated stories can nod at a player's history.
package rag

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"storyforge/server/internal/config"
	"storyforge/server/internal/models"
)

const (
	defaultCollection = "story_endings"
	defaultVectorSize = 1536

	// Scroll window when recalling; endings are re-sorted by
	// timestamp client-side before trimming to the caller's limit.
	recallScrollLimit = 64
)

// Embedder turns text into a vector. Satisfied by the AI client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MemoryStore keeps one point per finished playthrough in a Qdrant
// collection, keyed by player for recall at story start.
type MemoryStore struct {
	client     *qdrant.Client
	embedder   Embedder
	collection string
	log        *zap.Logger
}

// NewMemoryStore connects to Qdrant and ensures the endings collection
// exists.
func NewMemoryStore(ctx context.Context, cfg config.QdrantConfig, embedder Embedder, log *zap.Logger) (*MemoryStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = defaultCollection
	}
	size := cfg.VectorSize
	if size <= 0 {
		size = defaultVectorSize
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection %s: %w", collection, err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(size),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create collection %s: %w", collection, err)
		}
		log.Info("created qdrant collection", zap.String("collection", collection))
	}

	return &MemoryStore{client: client, embedder: embedder, collection: collection, log: log}, nil
}

// StoreEnding embeds and upserts one finished playthrough.
func (m *MemoryStore) StoreEnding(ctx context.Context, s *models.Session, ending string, positive bool) error {
	vector, err := m.embedder.Embed(ctx, ending)
	if err != nil {
		return fmt.Errorf("failed to embed ending: %w", err)
	}

	_, err = m.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: m.collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"player_id": s.PlayerID,
				"story_id":  s.StoryID,
				"path":      s.PathKey(),
				"ending":    ending,
				"positive":  positive,
				"coins":     int64(s.Coins),
				"timestamp": time.Now().Unix(),
			}),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert ending for %s: %w", s.PlayerID, err)
	}
	return nil
}

// RecallEndings returns the player's most recent ending texts, newest
// first.
func (m *MemoryStore) RecallEndings(ctx context.Context, playerID string, limit int) ([]string, error) {
	points, err := m.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: m.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("player_id", playerID)},
		},
		Limit:       qdrant.PtrOf(uint32(recallScrollLimit)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll endings for %s: %w", playerID, err)
	}

	type dated struct {
		ending string
		ts     int64
	}
	recalled := make([]dated, 0, len(points))
	for _, p := range points {
		ending := p.Payload["ending"].GetStringValue()
		if ending == "" {
			continue
		}
		recalled = append(recalled, dated{ending: ending, ts: p.Payload["timestamp"].GetIntegerValue()})
	}
	sort.Slice(recalled, func(i, j int) bool { return recalled[i].ts > recalled[j].ts })

	if limit > 0 && len(recalled) > limit {
		recalled = recalled[:limit]
	}
	out := make([]string, len(recalled))
	for i, r := range recalled {
		out[i] = r.ending
	}
	return out, nil
}

// RelatedEndings searches the player's history for endings similar to
// the query text.
func (m *MemoryStore) RelatedEndings(ctx context.Context, playerID, query string, limit int) ([]string, error) {
	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	points, err := m.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: m.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("player_id", playerID)},
		},
		Limit:       qdrant.PtrOf(uint64(limit)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query endings for %s: %w", playerID, err)
	}

	out := make([]string, 0, len(points))
	for _, p := range points {
		if ending := p.Payload["ending"].GetStringValue(); ending != "" {
			out = append(out, ending)
		}
	}
	return out, nil
}

// Close releases the underlying gRPC connection.
func (m *MemoryStore) Close() error {
	return m.client.Close()
}
