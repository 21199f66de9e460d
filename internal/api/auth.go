package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// authMiddleware gates the management API behind a shared API key. The key
// is accepted as "Authorization: Bearer <key>" or "Authorization: Api-Key
// <key>". Auth can be switched off for local development.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.opts.AuthRequired {
			next.ServeHTTP(w, r)
			return
		}
		if s.opts.APIKey == "" {
			slog.Warn("api auth required but no api key configured")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		header := r.Header.Get("Authorization")
		var provided string
		switch {
		case strings.HasPrefix(header, "Bearer "):
			provided = strings.TrimPrefix(header, "Bearer ")
		case strings.HasPrefix(header, "Api-Key "):
			provided = strings.TrimPrefix(header, "Api-Key ")
		}

		if provided == "" || provided != s.opts.APIKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientLimiter hands out one token bucket per client IP.
type clientLimiter struct {
	mu       sync.Mutex
	perMin   int
	limiters map[string]*rate.Limiter
}

func newClientLimiter(perMin int) *clientLimiter {
	return &clientLimiter{
		perMin:   perMin,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *clientLimiter) get(ip string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(c.perMin)/60.0), c.perMin)
		c.limiters[ip] = lim
	}
	return lim
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !s.limiter.get(ip).Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
