package auth

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ParseRateSpec parses limits of the form "100/hour" (also second, minute,
// day). "unlimited" or an empty spec reports unlimited=true.
func ParseRateSpec(spec string) (limit rate.Limit, burst int, unlimited bool, err error) {
	spec = strings.TrimSpace(strings.ToLower(spec))
	if spec == "" || spec == "unlimited" {
		return 0, 0, true, nil
	}

	parts := strings.SplitN(spec, "/", 2)
	if len(parts) != 2 {
		return 0, 0, false, fmt.Errorf("invalid rate limit %q", spec)
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || count <= 0 {
		return 0, 0, false, fmt.Errorf("invalid rate limit count in %q", spec)
	}

	var window time.Duration
	switch strings.TrimSpace(parts[1]) {
	case "second":
		window = time.Second
	case "minute":
		window = time.Minute
	case "hour":
		window = time.Hour
	case "day":
		window = 24 * time.Hour
	default:
		return 0, 0, false, fmt.Errorf("invalid rate limit window in %q", spec)
	}

	return rate.Limit(float64(count) / window.Seconds()), count, false, nil
}

// LimiterPool caches one token bucket per rate-limit identity (username,
// or client IP for anonymous callers). Buckets are keyed by identity and
// spec, so a limit changed by a principal hot reload takes effect on the
// identity's next request.
type LimiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLimiterPool creates an empty pool.
func NewLimiterPool() *LimiterPool {
	return &LimiterPool{limiters: make(map[string]*rate.Limiter)}
}

// Allow checks one request against the identity's limit. An unparseable
// spec fails open: auth must not become an outage amplifier.
func (p *LimiterPool) Allow(identity, spec string) bool {
	limit, burst, unlimited, err := ParseRateSpec(spec)
	if err != nil || unlimited {
		return true
	}

	key := identity + "|" + spec
	p.mu.Lock()
	limiter, ok := p.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(limit, burst)
		p.limiters[key] = limiter
	}
	p.mu.Unlock()

	return limiter.Allow()
}
