// Package storetest provides in-memory implementations of the session
// storage interfaces for tests.
package storetest

import (
	"context"
	"sync"
	"time"

	"storyforge/server/internal/interfaces"
	"storyforge/server/internal/models"
)

// Durable is an in-memory SessionDurable.
type Durable struct {
	mu   sync.Mutex
	rows map[string]*models.SessionRow

	// FailNext makes the next call return this error, for error-path
	// tests.
	FailNext error
}

func NewDurable() *Durable {
	return &Durable{rows: make(map[string]*models.SessionRow)}
}

func (d *Durable) fail() error {
	err := d.FailNext
	d.FailNext = nil
	return err
}

func (d *Durable) Upsert(ctx context.Context, row *models.SessionRow) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail(); err != nil {
		return err
	}
	cp := *row
	d.rows[row.ID] = &cp
	return nil
}

func (d *Durable) AcquireProcessing(ctx context.Context, id string, at, staleBefore time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail(); err != nil {
		return false, err
	}
	row, ok := d.rows[id]
	if !ok {
		return false, nil
	}
	if row.Processing && !row.ProcessingAt.Before(staleBefore) {
		return false, nil
	}
	row.Processing = true
	row.ProcessingAt = at
	return true, nil
}

func (d *Durable) Get(ctx context.Context, id string) (*models.SessionRow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail(); err != nil {
		return nil, err
	}
	row, ok := d.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (d *Durable) GetByPlayer(ctx context.Context, playerID string) (*models.SessionRow, error) {
	return d.find(func(r *models.SessionRow) bool { return r.PlayerID == playerID })
}

func (d *Durable) GetByMessage(ctx context.Context, messageID string) (*models.SessionRow, error) {
	return d.find(func(r *models.SessionRow) bool { return r.MessageID == messageID })
}

func (d *Durable) find(match func(*models.SessionRow) bool) (*models.SessionRow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail(); err != nil {
		return nil, err
	}
	for _, row := range d.rows {
		if match(row) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (d *Durable) Delete(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail(); err != nil {
		return err
	}
	delete(d.rows, id)
	return nil
}

func (d *Durable) List(ctx context.Context) ([]*models.SessionRow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*models.SessionRow, 0, len(d.rows))
	for _, row := range d.rows {
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

func (d *Durable) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for id, row := range d.rows {
		if row.LastActionAt.Before(olderThan) {
			delete(d.rows, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored rows.
func (d *Durable) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rows)
}

// Cache is an in-memory SessionCache that counts hits and misses.
type Cache struct {
	mu      sync.Mutex
	rows    map[string]*models.SessionRow
	indexes map[string]string

	Hits   int
	Misses int
}

func NewCache() *Cache {
	return &Cache{
		rows:    make(map[string]*models.SessionRow),
		indexes: make(map[string]string),
	}
}

func (c *Cache) Put(ctx context.Context, row *models.SessionRow, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *row
	c.rows[row.ID] = &cp
	if row.PlayerID != "" {
		c.indexes[interfaces.SessionIndexPlayer+":"+row.PlayerID] = row.ID
	}
	if row.MessageID != "" {
		c.indexes[interfaces.SessionIndexMessage+":"+row.MessageID] = row.ID
	}
	return nil
}

func (c *Cache) Get(ctx context.Context, id string) (*models.SessionRow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[id]
	if !ok {
		c.Misses++
		return nil, nil
	}
	c.Hits++
	cp := *row
	return &cp, nil
}

func (c *Cache) Lookup(ctx context.Context, index, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexes[index+":"+key], nil
}

func (c *Cache) Delete(ctx context.Context, row *models.SessionRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, row.ID)
	delete(c.indexes, interfaces.SessionIndexPlayer+":"+row.PlayerID)
	delete(c.indexes, interfaces.SessionIndexMessage+":"+row.MessageID)
	return nil
}

// Drop evicts a session from the cache without touching indexes, to
// simulate eviction.
func (c *Cache) Drop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, id)
}
