package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/ftarb/internal/domain"
)

const latestScanKey = "ftarb:scan:latest"

// ScanCache implements domain.ScanCache, holding the most recent scan result
// as a JSON string.
type ScanCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewScanCache creates a ScanCache. A zero ttl keeps the entry until it is
// overwritten.
func NewScanCache(c *Client, ttl time.Duration) *ScanCache {
	return &ScanCache{rdb: c.Underlying(), ttl: ttl}
}

// SetLatest stores result as the latest scan.
func (sc *ScanCache) SetLatest(ctx context.Context, result domain.ScanResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis: marshal scan %s: %w", result.RunID, err)
	}
	if err := sc.rdb.Set(ctx, latestScanKey, data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set latest scan: %w", err)
	}
	return nil
}

// Latest returns the cached scan, or domain.ErrNotFound.
func (sc *ScanCache) Latest(ctx context.Context) (domain.ScanResult, error) {
	data, err := sc.rdb.Get(ctx, latestScanKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ScanResult{}, domain.ErrNotFound
		}
		return domain.ScanResult{}, fmt.Errorf("redis: get latest scan: %w", err)
	}

	var result domain.ScanResult
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.ScanResult{}, fmt.Errorf("redis: unmarshal latest scan: %w", err)
	}
	return result, nil
}

var _ domain.ScanCache = (*ScanCache)(nil)
