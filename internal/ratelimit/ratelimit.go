// Package ratelimit throttles public endpoints per client IP using fixed
// windows counted in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/techgrid/site-backend/internal/metrics"
	"github.com/techgrid/site-backend/internal/pkg/httputil"
	"github.com/techgrid/site-backend/internal/pkg/logger"
)

// The first hit in a window creates the counter and starts its expiry, so
// every later hit in the same window shares one TTL.
const fixedWindowLuaScript = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {n, ttl}
`

// Rule is one named limit.
type Rule struct {
	Bucket  string
	Limit   int
	Window  time.Duration
	Message string
}

// Result of counting one request.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter counts requests per (bucket, ip). A nil *Limiter allows everything.
type Limiter struct {
	client *redis.Client
	script *redis.Script
}

func New(client *redis.Client) *Limiter {
	return &Limiter{client: client, script: redis.NewScript(fixedWindowLuaScript)}
}

func key(bucket, ip string) string { return fmt.Sprintf("ratelimit:%s:%s", bucket, ip) }

// Allow counts one request against rule for ip.
func (l *Limiter) Allow(ctx context.Context, rule Rule, ip string) (Result, error) {
	vals, err := l.script.Run(ctx, l.client, []string{key(rule.Bucket, ip)}, rule.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{Allowed: true}, fmt.Errorf("rate limit %s: %w", rule.Bucket, err)
	}
	if len(vals) != 2 {
		return Result{Allowed: true}, fmt.Errorf("rate limit %s: unexpected reply %v", rule.Bucket, vals)
	}
	count, ttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond
	if ttl < 0 {
		ttl = rule.Window
	}
	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: count <= rule.Limit, Remaining: remaining, ResetIn: ttl}, nil
}

// Middleware rejects requests over rule with 429. Redis failures let the
// request through.
func (l *Limiter) Middleware(rule Rule) func(http.Handler) http.Handler {
	if rule.Message == "" {
		rule.Message = "Too many requests from this IP, please try again later."
	}
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), rule, ClientIP(r))
			if err != nil {
				logger.Warn("ratelimit: check failed, allowing request", "bucket", rule.Bucket, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("RateLimit-Limit", strconv.Itoa(rule.Limit))
			h.Set("RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("RateLimit-Reset", strconv.Itoa(int(math.Ceil(res.ResetIn.Seconds()))))
			if !res.Allowed {
				metrics.RateLimited(rule.Bucket)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(res.ResetIn.Seconds()))))
				httputil.Error(w, http.StatusTooManyRequests, rule.Message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of RemoteAddr. Proxy headers are resolved
// upstream by chi's RealIP middleware.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
