package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimit returns a fixed-window, per-client-IP rate limiter backed by Redis.
//
// For every request the counter at "ratelimit:<path>:<ip>" is incremented
// and its TTL read in one pipeline. The TTL is set only when the window
// opens (first request, or a counter left without one), so later requests
// never push the window end back. Once the count passes limit the request
// is answered with 429 until the key expires.
//
// When Redis is unreachable the request is let through and a warning is
// logged: losing the limiter must not take login down with it.
//
// Put chi's RealIP middleware in front so r.RemoteAddr is the client, not
// the proxy.
func RateLimit(client *redis.Client, limit int, window time.Duration, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	if client == nil {
		return nil, fmt.Errorf("middleware: rate limit needs a redis client")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("middleware: rate limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("middleware: rate limit window must be positive, got %s", window)
	}

	retryAfter := strconv.Itoa(int(window.Round(time.Second).Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "ratelimit:" + r.URL.Path + ":" + clientIP(r)

			pipe := client.Pipeline()
			incr := pipe.Incr(ctx, key)
			ttl := pipe.TTL(ctx, key)
			if _, err := pipe.Exec(ctx); err != nil {
				failOpen(logger, key, err)
				next.ServeHTTP(w, r)
				return
			}

			if incr.Val() == 1 || ttl.Val() < 0 {
				if err := client.Expire(ctx, key, window).Err(); err != nil {
					failOpen(logger, key, err)
				}
			}

			if incr.Val() > int64(limit) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", retryAfter)
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limited",
					"message": "Too many requests",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func failOpen(logger *slog.Logger, key string, err error) {
	logger.Warn("rate limit check failed, allowing request",
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
}

// clientIP strips the port from r.RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
