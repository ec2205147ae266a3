package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"classtrack/internal/model"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// StagingCache is the Redis-backed staging boundary for the auto-mark
// scheduler: the pending hash plus two scalars, all surviving restarts.
type StagingCache struct {
	client *redis.Client
	prefix string
}

// NewStagingCache builds a cache under the given key prefix.
func NewStagingCache(client *redis.Client, prefix string) *StagingCache {
	if prefix == "" {
		prefix = "classtrack:automark"
	}
	return &StagingCache{client: client, prefix: prefix}
}

func (c *StagingCache) pendingKey() string { return c.prefix + ":pending" }
func (c *StagingCache) uploadKey() string  { return c.prefix + ":last_upload" }
func (c *StagingCache) enabledKey() string { return c.prefix + ":enabled" }

// Pending loads the whole staged map.
func (c *StagingCache) Pending(ctx context.Context) (map[model.RecordKey]model.PendingAttendance, error) {
	fields, err := c.client.HGetAll(ctx, c.pendingKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[model.RecordKey]model.PendingAttendance, len(fields))
	for _, raw := range fields {
		var p model.PendingAttendance
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		out[p.Key()] = p
	}
	return out, nil
}

// PutPending stores one staged entry, replacing any entry with the same key.
func (c *StagingCache) PutPending(ctx context.Context, p model.PendingAttendance) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.HSet(ctx, c.pendingKey(), p.Key().String(), raw).Err()
}

// ClearPending drops the whole pending hash.
func (c *StagingCache) ClearPending(ctx context.Context) error {
	return c.client.Del(ctx, c.pendingKey()).Err()
}

// LastUpload returns the day of the last successful flush, zero when unset.
func (c *StagingCache) LastUpload(ctx context.Context) (time.Time, error) {
	raw, err := c.client.Get(ctx, c.uploadKey()).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse("2006-01-02", raw)
}

// SetLastUpload records the day of a successful flush.
func (c *StagingCache) SetLastUpload(ctx context.Context, day time.Time) error {
	return c.client.Set(ctx, c.uploadKey(), model.DateKey(day), 0).Err()
}

// Enabled returns the persisted scheduler flag.
func (c *StagingCache) Enabled(ctx context.Context) (bool, error) {
	raw, err := c.client.Get(ctx, c.enabledKey()).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return raw == "1", nil
}

// SetEnabled persists the scheduler flag.
func (c *StagingCache) SetEnabled(ctx context.Context, on bool) error {
	val := "0"
	if on {
		val = "1"
	}
	return c.client.Set(ctx, c.enabledKey(), val, 0).Err()
}
