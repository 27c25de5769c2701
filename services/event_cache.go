package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tikit/models"
)

// EventCache keeps short-lived event snapshots in Redis so the
// verification hot path does not hit the store for every scan of the
// same event. Misses and Redis failures fall through to the store.
type EventCache struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewEventCache(redisClient *redis.Client, ttl time.Duration) *EventCache {
	return &EventCache{Redis: redisClient, TTL: ttl}
}

type eventLookup interface {
	EventByID(ctx context.Context, id string) (*models.Event, error)
}

func (c *EventCache) EventByID(ctx context.Context, eventID string, store eventLookup) (*models.Event, error) {
	key := eventCacheKey(eventID)

	if data, err := c.Redis.Get(ctx, key).Bytes(); err == nil {
		var event models.Event
		if err := json.Unmarshal(data, &event); err == nil {
			return &event, nil
		}
	}

	event, err := store.EventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(event); err == nil {
		c.Redis.Set(ctx, key, data, c.TTL)
	}
	return event, nil
}

// Invalidate drops the snapshot after an event changes (status flips,
// reschedules) so stale data cannot keep gates open.
func (c *EventCache) Invalidate(ctx context.Context, eventID string) {
	c.Redis.Del(ctx, eventCacheKey(eventID))
}

func eventCacheKey(eventID string) string {
	return fmt.Sprintf("event:snapshot:%s", eventID)
}
