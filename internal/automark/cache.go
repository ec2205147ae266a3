package automark

import (
	"context"
	"sync"
	"time"

	"classtrack/internal/model"
)

// Cache is the client-side staging boundary: the pending map plus the
// two scalars that survive across sessions.
type Cache interface {
	Pending(ctx context.Context) (map[model.RecordKey]model.PendingAttendance, error)
	// PutPending stores one staged entry, replacing any entry with the
	// same key.
	PutPending(ctx context.Context, p model.PendingAttendance) error
	// ClearPending drops the whole pending map.
	ClearPending(ctx context.Context) error

	LastUpload(ctx context.Context) (time.Time, error)
	SetLastUpload(ctx context.Context, day time.Time) error

	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, on bool) error
}

// MemoryCache keeps staging state in process memory. The pending map is
// swapped as a single value under the mutex, so readers never observe a
// half-applied update.
type MemoryCache struct {
	mu         sync.Mutex
	pending    map[model.RecordKey]model.PendingAttendance
	lastUpload time.Time
	enabled    bool
}

// NewMemoryCache creates an empty in-memory staging cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{pending: make(map[model.RecordKey]model.PendingAttendance)}
}

// Pending returns a copy of the staged map.
func (c *MemoryCache) Pending(ctx context.Context) (map[model.RecordKey]model.PendingAttendance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[model.RecordKey]model.PendingAttendance, len(c.pending))
	for k, v := range c.pending {
		out[k] = v
	}
	return out, nil
}

// PutPending stages or overwrites one entry.
func (c *MemoryCache) PutPending(ctx context.Context, p model.PendingAttendance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[model.RecordKey]model.PendingAttendance, len(c.pending)+1)
	for k, v := range c.pending {
		next[k] = v
	}
	next[p.Key()] = p
	c.pending = next
	return nil
}

// ClearPending drops all staged entries.
func (c *MemoryCache) ClearPending(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = make(map[model.RecordKey]model.PendingAttendance)
	return nil
}

// LastUpload returns the day of the last successful flush.
func (c *MemoryCache) LastUpload(ctx context.Context) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpload, nil
}

// SetLastUpload records the day of a successful flush.
func (c *MemoryCache) SetLastUpload(ctx context.Context, day time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUpload = day
	return nil
}

// Enabled returns the persisted scheduler flag.
func (c *MemoryCache) Enabled(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled, nil
}

// SetEnabled persists the scheduler flag.
func (c *MemoryCache) SetEnabled(ctx context.Context, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = on
	return nil
}
