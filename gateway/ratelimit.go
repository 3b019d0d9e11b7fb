package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per account.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	limiters sync.Map // account -> *rate.Limiter
}

// NewRateLimiter allows perMinute requests per account per minute, with bursts
// up to the same amount.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &RateLimiter{
		limit: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: perMinute,
	}
}

// Allow consumes one request from account's budget.
func (l *RateLimiter) Allow(account string) bool {
	v, ok := l.limiters.Load(account)
	if !ok {
		v, _ = l.limiters.LoadOrStore(account, rate.NewLimiter(l.limit, l.burst))
	}
	return v.(*rate.Limiter).Allow()
}
