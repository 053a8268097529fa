package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/relabs-tech/wedcards/core/logger"
)

const (
	maxLimiters = 10000
	limiterIdle = 10 * time.Minute
)

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter is a token bucket per client address
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	rate    rate.Limit
	burst   int
	now     func() time.Time
	// trustForwarded keys clients on X-Forwarded-For, set by a trusted proxy
	trustForwarded bool
}

func newClientLimiter(r rate.Limit, burst int, trustForwarded bool) *clientLimiter {
	return &clientLimiter{
		clients:        make(map[string]*clientEntry),
		rate:           r,
		burst:          burst,
		now:            time.Now,
		trustForwarded: trustForwarded,
	}
}

func (cl *clientLimiter) allow(key string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := cl.now()
	entry, ok := cl.clients[key]
	if !ok {
		if len(cl.clients) >= maxLimiters {
			cl.evict(now)
		}
		entry = &clientEntry{limiter: rate.NewLimiter(cl.rate, cl.burst)}
		cl.clients[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// evict drops idle clients, or all of them if none is idle
func (cl *clientLimiter) evict(now time.Time) {
	for key, entry := range cl.clients {
		if now.Sub(entry.lastSeen) > limiterIdle {
			delete(cl.clients, key)
		}
	}
	if len(cl.clients) >= maxLimiters {
		cl.clients = make(map[string]*clientEntry)
	}
}

// limit answers 429 for clients which exceed their rate
func (cl *clientLimiter) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := clientAddress(r, cl.trustForwarded)
		if !cl.allow(key) {
			logger.FromContext(r.Context()).WithField("client", key).Warnln("rate limit exceeded for", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			respondError(w, r, http.StatusTooManyRequests, "Too many requests", nil)
			return
		}
		next(w, r)
	}
}

// clientAddress is the remote host, or the first X-Forwarded-For entry when the
// header comes from a trusted proxy
func clientAddress(r *http.Request, trustForwarded bool) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); trustForwarded && forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
