package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Chat turns are expensive (an embedding call plus a model call each), so
// the one chat route sits behind a per-caller token bucket. Health probes
// and CORS preflight are routed around it.

const (
	throttleSweepEvery = 5 * time.Minute
	throttleIdleAfter  = 10 * time.Minute
)

// throttle admits or rejects requests per caller address. Buckets for idle
// callers are swept during admit, so no background goroutine is needed.
type throttle struct {
	refill     rate.Limit
	burst      int
	trustProxy bool
	logger     *slog.Logger

	mu        sync.Mutex
	buckets   map[string]*bucket
	nextSweep time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newThrottle(rps float64, burst int, trustProxy bool, logger *slog.Logger) *throttle {
	return &throttle{
		refill:     rate.Limit(rps),
		burst:      burst,
		trustProxy: trustProxy,
		logger:     logger,
		buckets:    make(map[string]*bucket),
		nextSweep:  time.Now().Add(throttleSweepEvery),
	}
}

// admit takes one token from addr's bucket, creating the bucket full on
// first sight.
func (t *throttle) admit(addr string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if now.After(t.nextSweep) {
		for k, b := range t.buckets {
			if now.Sub(b.lastSeen) > throttleIdleAfter {
				delete(t.buckets, k)
			}
		}
		t.nextSweep = now.Add(throttleSweepEvery)
	}

	b := t.buckets[addr]
	if b == nil {
		b = &bucket{lim: rate.NewLimiter(t.refill, t.burst)}
		t.buckets[addr] = b
	}
	b.lastSeen = now
	return b.lim.Allow()
}

// wrap puts the throttle in front of next. Rejected requests get 429 with
// a Retry-After hint.
func (t *throttle) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := t.callerAddr(r)
		if !t.admit(addr) {
			t.logger.Warn("request throttled",
				"addr", addr,
				"path", r.URL.Path,
				"method", r.Method,
			)
			w.Header().Set("Retry-After", "1")
			WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", t.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerAddr picks the bucket key for a request. Behind a trusted reverse
// proxy, X-Real-IP and then the first X-Forwarded-For entry name the real
// caller. A header value that does not parse as an IP is ignored, so header
// garbage cannot mint fresh buckets; the fallback is always the socket
// address.
func (t *throttle) callerAddr(r *http.Request) string {
	if t.trustProxy {
		for _, name := range []string{"X-Real-IP", "X-Forwarded-For"} {
			v := r.Header.Get(name)
			if v == "" {
				continue
			}
			if first, _, ok := strings.Cut(v, ","); ok {
				v = first
			}
			if ip := net.ParseIP(strings.TrimSpace(v)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
