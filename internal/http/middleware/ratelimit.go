package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	idleWindow   = 5 * time.Minute
	maxSendBurst = 3
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *gin.Context) string

// ClientIPKey buckets requests by client address.
func ClientIPKey(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// SessionKey buckets requests by waitlist session, falling back to the
// client address before a session is bound.
func SessionKey(c *gin.Context) string {
	if id := SessionID(c); id != "" {
		return "session:" + id
	}
	return ClientIPKey(c)
}

// RateLimits groups the limiters applied to the waitlist routes.
type RateLimits struct {
	// Requests throttles every form submission per client address.
	Requests *RateLimiter
	// Sends throttles submissions that text a code, per session.
	Sends *RateLimiter
}

// NewRateLimits builds both limiters. A non-positive budget disables that limiter.
func NewRateLimits(requestsPerMinute, sendsPerHour int) RateLimits {
	return RateLimits{
		Requests: NewRateLimiter(requestsPerMinute),
		Sends:    NewSendLimiter(sendsPerHour),
	}
}

// RateLimiter enforces token bucket throttling on state changing requests.
// GET, HEAD and OPTIONS pass through so the pending page can keep polling.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	key     KeyFunc
	window  time.Duration
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter limits each client address to requestsPerMinute.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return newRateLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst, ClientIPKey)
}

// NewSendLimiter limits each session to sendsPerHour code deliveries.
func NewSendLimiter(sendsPerHour int) *RateLimiter {
	if sendsPerHour <= 0 {
		return nil
	}
	burst := sendsPerHour
	if burst > maxSendBurst {
		burst = maxSendBurst
	}
	return newRateLimiter(rate.Every(time.Hour/time.Duration(sendsPerHour)), burst, SessionKey)
}

func newRateLimiter(limit rate.Limit, burst int, key KeyFunc) *RateLimiter {
	// Buckets are forgotten only once they would have refilled completely.
	window := idleWindow
	if refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second)); refill > window {
		window = refill
	}
	return &RateLimiter{
		limit:   limit,
		burst:   burst,
		key:     key,
		window:  window,
		clients: make(map[string]*clientLimiter),
	}
}

// Handler returns the gin middleware enforcing throttling behaviour.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		limiter := r.getLimiter(r.key(c))
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":             "rate_limited",
				"error_description": "Too many requests. Please slow down.",
			})
			return
		}

		c.Next()
	}
}

func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.clients[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	limiter := rate.NewLimiter(r.limit, r.burst)
	r.clients[key] = &clientLimiter{limiter: limiter, lastSeen: now}
	r.cleanupLocked(now)
	return limiter
}

func (r *RateLimiter) cleanupLocked(now time.Time) {
	for key, entry := range r.clients {
		if now.Sub(entry.lastSeen) > r.window {
			delete(r.clients, key)
		}
	}
}
