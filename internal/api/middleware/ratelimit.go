package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Olafs-World/agent-chatroom/internal/metrics"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, resetAt time.Time)
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	RPS       float64
	Burst     int
	Whitelist []string // IPs or CIDRs exempt from rate limiting
}

// RateLimiter throttles each client IP. Polling clients are expected to
// back off on their own; this only caps misbehaving ones.
type RateLimiter struct {
	limiter      Limiter
	limit        int
	logger       zerolog.Logger
	whitelist    []*net.IPNet
	whitelistIPs map[string]bool
	exempt       map[string]bool
}

// NewRateLimiter creates a rate limiter. With a nil client the counters
// live in process memory.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		limit:        cfg.Burst,
		logger:       logger,
		whitelistIPs: make(map[string]bool),
		exempt: map[string]bool{
			"/health":  true,
			StreamPath: true, // one long request per client
		},
	}

	if client != nil {
		perMinute := int(math.Ceil(cfg.RPS * 60))
		rl.limiter = &redisLimiter{client: client, limit: perMinute, window: time.Minute}
		rl.limit = perMinute
	} else {
		rl.limiter = newMemoryLimiter(cfg.RPS, cfg.Burst)
	}

	// Parse whitelist entries
	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	return rl
}

// isWhitelisted checks if an IP is in the whitelist.
func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// RealIP returns the client address used for rate limiting and logs.
// Forwarding headers are honored only when the peer is on loopback, which
// is where cloudflared connects from; a direct client cannot choose its
// own key.
func RealIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if ip := net.ParseIP(peer); ip == nil || !ip.IsLoopback() {
		return peer
	}

	// cloudflared forwards the visitor address here
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return peer
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)

		if rl.exempt[r.URL.Path] || r.Method == http.MethodOptions || rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		key := "ratelimit:ip:" + ip
		allowed, remaining, resetAt := rl.limiter.Allow(r.Context(), key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retry := int(math.Ceil(time.Until(resetAt).Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))

			metrics.RateLimitHits.WithLabelValues(normalizePath(r.URL.Path)).Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("rate limit exceeded")

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// memoryLimiter keeps one token bucket per key.
type memoryLimiter struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const bucketIdleTTL = 10 * time.Minute

func newMemoryLimiter(rps float64, burst int) *memoryLimiter {
	if burst < 1 {
		burst = 1
	}
	return &memoryLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

func (m *memoryLimiter) Allow(_ context.Context, key string) (bool, int, time.Time) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) > time.Minute {
		for k, b := range m.buckets {
			if now.Sub(b.lastSeen) > bucketIdleTTL {
				delete(m.buckets, k)
			}
		}
		m.lastSweep = now
	}

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(m.rps, m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	remaining := int(math.Max(0, math.Floor(tokens)))

	resetAt := now
	if tokens < 1 && m.rps > 0 {
		wait := time.Duration((1 - tokens) / float64(m.rps) * float64(time.Second))
		resetAt = now.Add(wait)
	}

	return allowed, remaining, resetAt
}

// redisLimiter is a fixed-window counter shared by every relay using the
// same Redis.
type redisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time) {
	now := time.Now()
	bucketStart := now.Truncate(l.window)
	windowKey := fmt.Sprintf("%s:%d", key, bucketStart.Unix())

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, l.window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: a Redis outage must not take the room down.
		return true, l.limit, bucketStart.Add(l.window)
	}

	count := int(incr.Val())
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= l.limit, remaining, bucketStart.Add(l.window)
}
