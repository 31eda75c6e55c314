package ratelimit

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type bucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
}

// RateLimiter is a per-client token bucket. Clients are keyed by the
// X-Client-ID header when present, otherwise by IP.
type RateLimiter struct {
	mu         sync.RWMutex
	buckets    map[string]*bucket
	maxTokens  int
	refillRate time.Duration
	idleAfter  time.Duration
	logger     *zap.Logger
	now        func() time.Time
	done       chan struct{}
	stopOnce   sync.Once
}

type Config struct {
	MaxRequestsPerMinute int
	WindowDuration       time.Duration
	Logger               *zap.Logger
}

func New(cfg Config) *RateLimiter {
	if cfg.MaxRequestsPerMinute <= 0 {
		cfg.MaxRequestsPerMinute = 60
	}
	if cfg.WindowDuration == 0 {
		cfg.WindowDuration = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	rl := &RateLimiter{
		buckets:    make(map[string]*bucket),
		maxTokens:  cfg.MaxRequestsPerMinute,
		refillRate: cfg.WindowDuration / time.Duration(cfg.MaxRequestsPerMinute),
		idleAfter:  10 * cfg.WindowDuration,
		logger:     cfg.Logger,
		now:        time.Now,
		done:       make(chan struct{}),
	}

	go rl.cleanup(5 * time.Minute)

	return rl
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP()
		if clientID := c.Get("X-Client-ID"); clientID != "" {
			key = clientID
		}

		allowed, remaining := rl.allow(key)
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.maxTokens))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(rl.refillRate.Seconds())+1))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

func (rl *RateLimiter) bucketFor(key string) *bucket {
	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()
	if ok {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok = rl.buckets[key]; !ok {
		b = &bucket{tokens: rl.maxTokens, lastRefill: rl.now()}
		rl.buckets[key] = b
	}
	return b
}

func (rl *RateLimiter) allow(key string) (bool, int) {
	b := rl.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := rl.now()
	if refill := int(now.Sub(b.lastRefill) / rl.refillRate); refill > 0 {
		b.tokens += refill
		b.lastRefill = b.lastRefill.Add(time.Duration(refill) * rl.refillRate)
		if b.tokens >= rl.maxTokens {
			b.tokens = rl.maxTokens
			b.lastRefill = now
		}
	}

	if b.tokens == 0 {
		return false, 0
	}
	b.tokens--
	return true, b.tokens
}

func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastRefill) > rl.idleAfter {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}
