package shield

import (
	"database/sql"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig is the limit of one endpoint ("METHOD /path").
type RateLimitConfig struct {
	MaxRequests   int
	WindowSeconds int
	Enabled       bool
}

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter limits requests per client IP and endpoint with fixed windows.
// Rules come from the rate_limits table; endpoints without a rule are not
// limited.
type RateLimiter struct {
	db      *sql.DB
	logger  *slog.Logger
	exclude []string

	mu    sync.RWMutex
	rules map[string]RateLimitConfig

	buckets sync.Map // ip + " " + endpoint -> *bucket
	now     func() time.Time
}

// NewRateLimiter loads the rules from db.
func NewRateLimiter(db *sql.DB, logger *slog.Logger, excludePrefixes ...string) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimiter{
		db:      db,
		logger:  logger,
		exclude: excludePrefixes,
		rules:   make(map[string]RateLimitConfig),
		now:     time.Now,
	}
	rl.Reload()
	return rl
}

// StartReloader reloads the rules every minute and drops expired buckets
// every five, until done is closed.
func (rl *RateLimiter) StartReloader(done <-chan struct{}) {
	reload := time.NewTicker(time.Minute)
	gc := time.NewTicker(5 * time.Minute)
	go func() {
		defer reload.Stop()
		defer gc.Stop()
		for {
			select {
			case <-done:
				return
			case <-reload.C:
				rl.Reload()
			case <-gc.C:
				rl.gc()
			}
		}
	}()
}

// Reload reads the rules again. A read failure keeps the previous rules.
func (rl *RateLimiter) Reload() {
	rows, err := rl.db.Query(`SELECT endpoint, max_requests, window_seconds, enabled FROM rate_limits`)
	if err != nil {
		rl.logger.Warn("shield: reload rate limits", "error", err)
		return
	}
	defer rows.Close()

	rules := make(map[string]RateLimitConfig)
	for rows.Next() {
		var (
			endpoint string
			cfg      RateLimitConfig
			enabled  int
		)
		if err := rows.Scan(&endpoint, &cfg.MaxRequests, &cfg.WindowSeconds, &enabled); err != nil {
			continue
		}
		cfg.Enabled = enabled == 1
		rules[endpoint] = cfg
	}

	rl.mu.Lock()
	rl.rules = rules
	rl.mu.Unlock()
	rl.logger.Debug("shield: rate limits loaded", "count", len(rules))
}

func (rl *RateLimiter) gc() {
	now := rl.now()
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

// allow reports whether the request may proceed and, when not, the seconds
// until the window resets.
func (rl *RateLimiter) allow(ip, endpoint string) (bool, int) {
	rl.mu.RLock()
	cfg, ok := rl.rules[endpoint]
	rl.mu.RUnlock()
	if !ok || !cfg.Enabled {
		return true, 0
	}

	now := rl.now()
	window := time.Duration(cfg.WindowSeconds) * time.Second
	v, _ := rl.buckets.LoadOrStore(ip+" "+endpoint, &bucket{resetAt: now.Add(window)})
	b := v.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()
	if now.After(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(window)
	}
	b.count++
	if b.count <= cfg.MaxRequests {
		return true, 0
	}
	return false, int(b.resetAt.Sub(now).Seconds()) + 1
}

// Middleware answers 429 with a Retry-After header once a client exceeds
// the limit of the endpoint.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		endpoint := r.Method + " " + r.URL.Path
		ip := ExtractIP(r)
		ok, retry := rl.allow(ip, endpoint)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		rl.logger.Warn("shield: rate limited", "ip", ip, "endpoint", endpoint)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// ExtractIP returns the first X-Forwarded-For address, else the host of
// RemoteAddr.
func ExtractIP(r *http.Request) string {
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
