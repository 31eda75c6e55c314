package weather

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/complaint"
	"github.com/urbanfix/backend/internal/metrics"
	"github.com/urbanfix/backend/pkg/logger"
	"github.com/urbanfix/backend/pkg/utils"
)

// Cache stores weather by address hash. The redis client satisfies it.
type Cache interface {
	GetWeather(ctx context.Context, addressHash string) (complaint.WeatherContext, bool, error)
	SetWeather(ctx context.Context, addressHash string, wc complaint.WeatherContext, ttl time.Duration) error
}

// CachedProvider serves repeat addresses from Cache. Only available results
// are stored, and cache errors fall through to the wrapped provider.
type CachedProvider struct {
	next  Provider
	cache Cache
	ttl   time.Duration
}

func NewCachedProvider(next Provider, cache Cache, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CachedProvider{next: next, cache: cache, ttl: ttl}
}

func (p *CachedProvider) Fetch(ctx context.Context, address string) complaint.WeatherContext {
	key := utils.HashString(address)

	cached, ok, err := p.cache.GetWeather(ctx, key)
	if err != nil {
		logger.Warn("Weather cache read failed", zap.Error(err))
	}
	if ok {
		metrics.WeatherCacheHits.Inc()
		return cached
	}
	metrics.WeatherCacheMisses.Inc()

	wc := p.next.Fetch(ctx, address)
	if wc.Available {
		if err := p.cache.SetWeather(ctx, key, wc, p.ttl); err != nil {
			logger.Warn("Weather cache write failed", zap.Error(err))
		}
	}
	return wc
}
