package shield

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// RateLimiter enforces fixed-window per-IP limits for the endpoints listed in
// the rate_limits table. Endpoints without an enabled rule are not limited.
type RateLimiter struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	rules   map[string]Rule
	windows map[string]*window
}

// NewRateLimiter loads the rules from db. Call StartReloader to refresh them
// and drop expired windows in the background.
func NewRateLimiter(db *sql.DB) *RateLimiter {
	rl := &RateLimiter{
		db:      db,
		now:     time.Now,
		rules:   make(map[string]Rule),
		windows: make(map[string]*window),
	}
	rl.Reload(context.Background())
	return rl
}

// StartReloader reloads rules every minute and collects expired windows
// every five minutes until ctx is done.
func (rl *RateLimiter) StartReloader(ctx context.Context) {
	reload := time.NewTicker(time.Minute)
	gc := time.NewTicker(5 * time.Minute)
	go func() {
		defer reload.Stop()
		defer gc.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reload.C:
				rl.Reload(ctx)
			case <-gc.C:
				rl.gc()
			}
		}
	}()
}

// Reload replaces the in-memory rules with the enabled rows of rate_limits.
// On query failure the previous rules stay in force.
func (rl *RateLimiter) Reload(ctx context.Context) {
	rows, err := rl.db.QueryContext(ctx,
		`SELECT endpoint, max_requests, window_seconds FROM rate_limits WHERE enabled = 1`)
	if err != nil {
		slog.Warn("ratelimit: reload failed", "error", err)
		return
	}
	defer rows.Close()

	rules := make(map[string]Rule)
	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.Endpoint, &r.MaxRequests, &r.WindowSeconds); err != nil {
			continue
		}
		rules[r.Endpoint] = r
	}

	rl.mu.Lock()
	rl.rules = rules
	rl.mu.Unlock()
	slog.Debug("ratelimit: rules reloaded", "count", len(rules))
}

func (rl *RateLimiter) gc() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, w := range rl.windows {
		if now.After(w.resetAt) {
			delete(rl.windows, k)
		}
	}
}

// allow reports whether the request may proceed, and the window length to
// advertise in Retry-After when it may not.
func (rl *RateLimiter) allow(ip, endpoint string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rule, ok := rl.rules[endpoint]
	if !ok {
		return true, 0
	}
	now := rl.now()
	key := ip + "|" + endpoint
	w, ok := rl.windows[key]
	if !ok || now.After(w.resetAt) {
		rl.windows[key] = &window{count: 1, resetAt: now.Add(time.Duration(rule.WindowSeconds) * time.Second)}
		return true, 0
	}
	w.count++
	return w.count <= rule.MaxRequests, rule.WindowSeconds
}

// Middleware answers 429 with a JSON error once a client exceeds the rule for
// "METHOD /path".
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.Method + " " + r.URL.Path
		ip := ClientIP(r)
		ok, retry := rl.allow(ip, endpoint)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		GetLogger(r.Context()).Warn("ratelimit: request blocked", "ip", ip, "endpoint", endpoint)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "rate limit exceeded",
			"code":  "rate_limited",
		})
	})
}

// ClientIP returns the first X-Forwarded-For hop, or the RemoteAddr host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
