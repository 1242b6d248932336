package api

import (
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// loggingWriter wraps http.ResponseWriter to capture status and size.
type loggingWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (w *loggingWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

func (w *loggingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// LoggingMiddleware logs request details including latency and status.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &loggingWriter{ResponseWriter: w}

			next.ServeHTTP(wrapper, r)

			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapper.statusCode,
				"bytes", wrapper.bytesWritten,
				"duration", time.Since(start),
				"ip", r.RemoteAddr,
			)
		})
	}
}

// RecoveryMiddleware recovers from handler panics so one request cannot
// take down the server. It only writes an error if headers were not yet
// sent.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapper := &loggingWriter{ResponseWriter: w}

			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"headers_sent", wrapper.statusCode != 0,
					)
					if wrapper.statusCode == 0 {
						http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					}
				}
			}()

			next.ServeHTTP(wrapper, r)
		})
	}
}

// clientLimiters hands out one token bucket per client IP.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

func newClientLimiters(perMinute int) *clientLimiters {
	return &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMinute,
	}
}

func (c *clientLimiters) get(ip string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	limiter, ok := c.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(c.perMin)/60.0), c.perMin)
		c.limiters[ip] = limiter
	}
	return limiter
}

// RateLimitMiddleware rejects clients exceeding perMinute requests with
// 429. A non-positive limit disables throttling.
func RateLimitMiddleware(perMinute int) func(http.Handler) http.Handler {
	limiters := newClientLimiters(perMinute)
	return func(next http.Handler) http.Handler {
		if perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !limiters.get(ip).Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// InternalAuthMiddleware guards the internal ingestion surface with a
// shared API key carried in X-Internal-API-Key.
func InternalAuthMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			supplied := r.Header.Get("X-Internal-API-Key")
			if key == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid internal API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
