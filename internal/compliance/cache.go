package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const reportCacheKey = "compliance:report"

// ReportCache keeps the latest compliance report in Redis so dashboard
// polling does not re-score every framework on each request.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache instantiates the cache helper. A nil client disables
// caching transparently.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

// Fetch returns the cached report or populates the cache via loader.
func (c *ReportCache) Fetch(ctx context.Context, loader func(context.Context) (Report, error)) (Report, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	raw, err := c.client.Get(ctx, reportCacheKey).Bytes()
	if err == nil {
		var report Report
		if jsonErr := json.Unmarshal(raw, &report); jsonErr == nil {
			return report, nil
		}
		// Corrupt entry; fall through and repopulate.
	} else if !errors.Is(err, redis.Nil) {
		return Report{}, err
	}
	report, err := loader(ctx)
	if err != nil {
		return Report{}, err
	}
	data, err := json.Marshal(report)
	if err != nil {
		return Report{}, err
	}
	if err := c.client.Set(ctx, reportCacheKey, data, c.ttl).Err(); err != nil {
		return Report{}, err
	}
	return report, nil
}

// Invalidate drops the cached report, typically after an assessment.
func (c *ReportCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, reportCacheKey).Err()
}
