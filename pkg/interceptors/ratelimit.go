package interceptors

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/FACorreiaa/collections-portal/internal/domain/common"
)

var ErrRateLimited = errors.New("too many requests, slow down")

// RateLimit applies one token bucket to every request.
func RateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				tooMany(w, time.Second)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientLimiter keeps a token bucket per client IP. Buckets idle for longer
// than ttl are swept when the table grows past maxClients.
type ClientLimiter struct {
	mu          sync.Mutex
	clients     map[string]*clientBucket
	limit       rate.Limit
	burst       int
	ttl         time.Duration
	maxClients  int
	trustedHops int
	now         func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewClientLimiter(limit rate.Limit, burst int, ttl time.Duration) *ClientLimiter {
	return &ClientLimiter{
		clients:    make(map[string]*clientBucket),
		limit:      limit,
		burst:      burst,
		ttl:        ttl,
		maxClients: 10000,
		now:        time.Now,
	}
}

// PerMinute builds a limiter allowing n requests per minute per client.
func PerMinute(n int) *ClientLimiter {
	if n <= 0 {
		n = 1
	}
	return NewClientLimiter(rate.Every(time.Minute/time.Duration(n)), n, 10*time.Minute)
}

// TrustProxies sets how many reverse proxies in front of the server append
// to X-Forwarded-For. Zero keys buckets on the TCP peer address.
func (c *ClientLimiter) TrustProxies(hops int) *ClientLimiter {
	c.trustedHops = max(hops, 0)
	return c
}

func (c *ClientLimiter) Allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.clients) >= c.maxClients {
		for k, b := range c.clients {
			if now.Sub(b.lastSeen) > c.ttl {
				delete(c.clients, k)
			}
		}
	}

	b, ok := c.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (c *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.Allow(ClientIP(r, c.trustedHops)) {
			tooMany(w, time.Minute)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tooMany(w http.ResponseWriter, retry time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
	common.WriteStatus(w, http.StatusTooManyRequests, ErrRateLimited)
}

// ClientIP returns the caller address given trustedHops proxies in front of
// the server. Each proxy appends the address it received from, so the
// entry trustedHops from the right is the one the outermost trusted proxy
// saw; anything left of it is client supplied. With no trusted proxies, or
// a header shorter than expected, the TCP peer is used.
func ClientIP(r *http.Request, trustedHops int) string {
	if trustedHops > 0 {
		var hops []string
		for _, v := range r.Header.Values("X-Forwarded-For") {
			for _, h := range strings.Split(v, ",") {
				if h = strings.TrimSpace(h); h != "" {
					hops = append(hops, h)
				}
			}
		}
		if len(hops) >= trustedHops {
			return hops[len(hops)-trustedHops]
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
