// Package cache provides the expiring key-value store that holds raw
// signals and intermediate tag sets. Nothing in it is durable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// TTL classes.
const (
	TTLStatic      = 30 * 24 * time.Hour // venue location, facilities
	TTLSemiDynamic = 7 * 24 * time.Hour  // QoE tags, fixtures
	TTLRaw         = 48 * time.Hour      // social posts, scraped content
	TTLSession     = time.Hour
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = eris.New("cache: miss")

// Cache is an expiring key-value store. Every entry carries its own TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// RawSignalKey is the key a raw venue post is archived under.
func RawSignalKey(venueID, itemID string) string {
	return fmt.Sprintf("raw:venue_post:%s:%s", venueID, itemID)
}

// QoETagsKey is the key a venue's latest QoE tag set is cached under.
func QoETagsKey(venueID string) string {
	return fmt.Sprintf("venue:%s:qoe_tags", venueID)
}

// SetJSON marshals v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "cache: marshal %s", key)
	}
	return c.Set(ctx, key, data, ttl)
}

// GetJSON loads key into dst. It returns false on a miss.
func GetJSON(ctx context.Context, c Cache, key string, dst any) (bool, error) {
	data, err := c.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, eris.Wrapf(err, "cache: unmarshal %s", key)
	}
	return true, nil
}
