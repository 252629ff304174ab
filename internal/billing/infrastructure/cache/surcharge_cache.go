package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"homecare-cloud/internal/billing/application"
	billing "homecare-cloud/internal/billing/domain"
	"homecare-cloud/internal/observability/metrics"
)

// SurchargeCache memoizes surcharge definitions per company for a TTL.
type SurchargeCache struct {
	next  application.SurchargeSource
	cache *lru.LRU[string, []billing.Surcharge]
}

// NewSurchargeCache wraps next. A size of zero disables caching.
func NewSurchargeCache(next application.SurchargeSource, size int, ttl time.Duration) application.SurchargeSource {
	if size <= 0 {
		return next
	}
	return &SurchargeCache{
		next:  next,
		cache: lru.NewLRU[string, []billing.Surcharge](size, nil, ttl),
	}
}

// ListSurcharges returns cached surcharges or loads them.
func (c *SurchargeCache) ListSurcharges(ctx context.Context, companyID string) ([]billing.Surcharge, error) {
	if cached, ok := c.cache.Get(companyID); ok {
		metrics.IncSurchargeCache(true)
		return cached, nil
	}
	metrics.IncSurchargeCache(false)
	surcharges, err := c.next.ListSurcharges(ctx, companyID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(companyID, surcharges)
	return surcharges, nil
}

// Invalidate drops the cached surcharges of a company.
func (c *SurchargeCache) Invalidate(companyID string) {
	c.cache.Remove(companyID)
}
