package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// KeyFunc extracts the limiter key.  Defaults to the signed-in user and
	// falls back to the client IP.
	KeyFunc func(c *gin.Context) string
	// CleanupInterval is how often idle limiters are dropped.
	CleanupInterval time.Duration
}

func defaultKeyFunc(c *gin.Context) string {
	if userID := ContextGetUserID(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter keeps one token bucket per key.
type KeyedLimiter struct {
	limit    rate.Limit
	burst    int
	idle     time.Duration
	mu       sync.Mutex
	visitors map[string]*visitor
	stop     chan struct{}
	stopOnce sync.Once
}

// NewKeyedLimiter creates a limiter.  A positive cleanupInterval starts a
// goroutine that drops keys idle for longer than it; call Stop to end it.
func NewKeyedLimiter(rps float64, burst int, cleanupInterval time.Duration) *KeyedLimiter {
	l := &KeyedLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     cleanupInterval,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go l.cleanupLoop()
	}
	return l
}

// Reserve takes one token for key.  It reports whether the request may
// proceed and, when it may not, how long until a token is available.
func (l *KeyedLimiter) Reserve(key string) (bool, time.Duration) {
	now := time.Now()
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	r := v.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (l *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stop:
			return
		}
	}
}

func (l *KeyedLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Stop ends the cleanup goroutine.
func (l *KeyedLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// RateLimit throttles the generation proxy.  Rejected requests get 429 with
// a Retry-After header and the proxy's {"error"} body.
func RateLimit(limiter *KeyedLimiter, config RateLimitConfig, m *prometheus.AppMetrics) gin.HandlerFunc {
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = defaultKeyFunc
	}
	if m == nil {
		m = prometheus.NewNoopAppMetrics()
	}
	return func(c *gin.Context) {
		allowed, wait := limiter.Reserve(keyFunc(c))
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Burst))
		if allowed {
			c.Next()
			return
		}

		secs := int(wait.Seconds())
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
		m.RateLimitedTotal.WithLabelValues(c.FullPath()).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gentypes.ProxyError{Error: "rate limit exceeded, please retry later"})
	}
}
