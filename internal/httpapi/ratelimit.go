package httpapi

import (
	"sync"

	"golang.org/x/time/rate"
)

// tokenLimiter applies a per-bearer-token request rate limit, adapted from
// the teacher's per-user bandwidth meter to per-request admission instead
// of per-byte — the relay has no notion of "bytes transferred" worth
// metering at this layer, but repeated `/request` calls from one stolen
// token are exactly what this should throttle.
type tokenLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rateVal  rate.Limit
	burst    int
}

func newTokenLimiter(requestsPerSecond float64, burst int) *tokenLimiter {
	return &tokenLimiter{
		limiters: make(map[string]*rate.Limiter),
		rateVal:  rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Allow reports whether token may issue another request right now.
func (t *tokenLimiter) Allow(token string) bool {
	return t.limiter(token).Allow()
}

func (t *tokenLimiter) limiter(token string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	lim, ok := t.limiters[token]
	if !ok {
		lim = rate.NewLimiter(t.rateVal, t.burst)
		t.limiters[token] = lim
	}
	return lim
}
