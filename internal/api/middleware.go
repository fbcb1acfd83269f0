package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"tripplanner/internal/metrics"
)

// statusRecorder captures the response code. It passes Flush and Hijack
// through so that SSE and websocket handlers keep working behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// MetricsMiddleware records request counts and latencies per route.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		labels := []string{r.Method, routeLabel(r.URL.Path), strconv.Itoa(rec.status)}
		metrics.HTTPRequests.WithLabelValues(labels...).Inc()
		metrics.HTTPDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}

// routeLabel replaces trip and day ids so that labels stay bounded.
func routeLabel(path string) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if (parts[i-1] == "trips" || parts[i-1] == "days") && parts[i] != "" {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

// RateLimiter applies a token bucket per client. Clients are keyed by the
// X-User-Id header or the bearer token when present, else by remote IP.
type RateLimiter struct {
	RPS   float64
	Burst int

	mu      sync.Mutex
	clients map[string]*clientBucket
	now     func() time.Time
}

type clientBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

const (
	limiterIdle     = 10 * time.Minute
	limiterSweepLen = 1024
)

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{RPS: rps, Burst: burst, clients: map[string]*clientBucket{}, now: time.Now}
}

func (l *RateLimiter) allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.clients) >= limiterSweepLen {
		for k, c := range l.clients {
			if now.Sub(c.seen) > limiterIdle {
				delete(l.clients, k)
			}
		}
	}
	c, ok := l.clients[key]
	if !ok {
		c = &clientBucket{lim: rate.NewLimiter(rate.Limit(l.RPS), l.Burst)}
		l.clients[key] = c
	}
	c.seen = now
	return c.lim.AllowN(now, 1)
}

func clientKey(r *http.Request) string {
	if u := r.Header.Get("X-User-Id"); u != "" {
		return "user:" + u
	}
	if a := r.Header.Get("Authorization"); a != "" {
		return "token:" + a
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware rejects requests over the limit with 429. Probes and metrics
// scrapes are never limited; a non-positive RPS disables limiting.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil || l.RPS <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			next.ServeHTTP(w, r)
			return
		}
		if !l.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CORS wraps next with the allowed origins; no origins means no CORS headers.
func CORS(origins []string, next http.Handler) http.Handler {
	if len(origins) == 0 {
		return next
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-User-Id", "X-Role"},
		AllowCredentials: true,
		MaxAge:           600,
	}).Handler(next)
}
