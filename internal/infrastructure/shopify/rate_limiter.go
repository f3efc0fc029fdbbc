package shopify

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Admin API leaky bucket defaults: 2 requests/second, bucket of 40
const (
	DefaultRequestsPerSecond = 2
	DefaultBurst             = 40
)

// RateLimiter throttles outgoing platform calls per shop
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
	logger   zerolog.Logger
}

// NewRateLimiter creates a rate limiter with the Admin API defaults
func NewRateLimiter(logger zerolog.Logger) *RateLimiter {
	return NewRateLimiterWithLimits(DefaultRequestsPerSecond, DefaultBurst, logger)
}

// NewRateLimiterWithLimits creates a rate limiter with explicit limits
func NewRateLimiterWithLimits(rps float64, burst int, logger zerolog.Logger) *RateLimiter {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   logger,
	}
}

func (rl *RateLimiter) getLimiter(shop string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[shop]
	if !ok {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[shop] = limiter
	}
	return limiter
}

// Wait blocks until the shop's bucket allows another call or ctx is done
func (rl *RateLimiter) Wait(ctx context.Context, shop string) error {
	limiter := rl.getLimiter(shop)
	if limiter.Allow() {
		return nil
	}

	rl.logger.Debug().Str("shop", shop).Msg("Rate limit reached, waiting")
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", shop, err)
	}
	return nil
}
