package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Logger
// =============================================================================

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(Logger(logger))
	r.Get("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	req := httptest.NewRequest(http.MethodGet, "/teapot", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/teapot", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.EqualValues(t, len("short and stout"), entry["bytes"])
	assert.NotEmpty(t, entry["request_id"])
}

func TestLogger_DefaultStatusIs200(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.EqualValues(t, http.StatusOK, entry["status"])
}

func TestLogger_ServerErrorLogsAtError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}

// =============================================================================
// Metrics
// =============================================================================

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	r := chi.NewRouter()
	r.Use(metrics.Handler)
	r.Get("/api/snippets/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/snippets/"+id, nil))
	}

	count := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", "/api/snippets/{id}", "200"))
	assert.Equal(t, float64(3), count)

	// One series per route, not per id.
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.RequestsTotal))
}

func TestMetrics_UnmatchedRoute(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	r := chi.NewRouter()
	r.Use(metrics.Handler)
	r.Get("/known", func(w http.ResponseWriter, _ *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/scan/path", nil))

	count := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("GET", unmatchedRoute, "404"))
	assert.Equal(t, float64(1), count)
}

func TestMetrics_RecordsDuration(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	r := chi.NewRouter()
	r.Use(metrics.Handler)
	r.Post("/api/login", func(w http.ResponseWriter, _ *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/login", nil))

	families, err := registry.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() == "snippets_http_request_duration_seconds" {
			found = true
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, uint64(1), mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found, "duration histogram not registered")
}

// =============================================================================
// RateLimit
// =============================================================================

func newRateLimited(t *testing.T, limit int) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mw, err := RateLimit(client, limit, time.Minute, discardLogger())
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mw(ok), mr
}

func post(h http.Handler, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_BlocksAfterLimit(t *testing.T) {
	h, _ := newRateLimited(t, 3)

	for i := 0; i < 3; i++ {
		rec := post(h, "/api/login", "10.0.0.1:5000")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := post(h, "/api/login", "10.0.0.1:5000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "rate_limited", body["error"])
	assert.Equal(t, "Too many requests", body["message"])
}

func TestRateLimit_KeyedByIPAndPath(t *testing.T) {
	h, mr := newRateLimited(t, 1)

	assert.Equal(t, http.StatusOK, post(h, "/api/login", "10.0.0.1:5000").Code)
	// Port changes do not reset the counter.
	assert.Equal(t, http.StatusTooManyRequests, post(h, "/api/login", "10.0.0.1:6000").Code)

	// Another client, and another route, have their own windows.
	assert.Equal(t, http.StatusOK, post(h, "/api/login", "10.0.0.2:5000").Code)
	assert.Equal(t, http.StatusOK, post(h, "/api/register", "10.0.0.1:5000").Code)

	assert.True(t, mr.Exists("ratelimit:/api/login:10.0.0.1"))
	assert.True(t, mr.Exists("ratelimit:/api/register:10.0.0.1"))
}

func TestRateLimit_WindowExpires(t *testing.T) {
	h, mr := newRateLimited(t, 1)
	key := "ratelimit:/api/login:10.0.0.1"

	assert.Equal(t, http.StatusOK, post(h, "/api/login", "10.0.0.1:5000").Code)
	assert.Equal(t, time.Minute, mr.TTL(key))

	mr.FastForward(30 * time.Second)

	// A rejected request does not push the end of the window back.
	assert.Equal(t, http.StatusTooManyRequests, post(h, "/api/login", "10.0.0.1:5000").Code)
	assert.Equal(t, 30*time.Second, mr.TTL(key))

	mr.FastForward(31 * time.Second)

	assert.Equal(t, http.StatusOK, post(h, "/api/login", "10.0.0.1:5000").Code)
}

func TestRateLimit_SteadyRetriesAreNotLockedOut(t *testing.T) {
	h, mr := newRateLimited(t, 1)

	// Limit 1 per minute, a retry every 50s: each new window lets one through.
	want := []int{
		http.StatusOK,              // t=0s, window opens
		http.StatusTooManyRequests, // t=50s
		http.StatusOK,              // t=100s, new window
		http.StatusTooManyRequests, // t=150s
		http.StatusOK,              // t=200s, new window
	}
	for i, code := range want {
		if i > 0 {
			mr.FastForward(50 * time.Second)
		}
		assert.Equal(t, code, post(h, "/api/login", "10.0.0.1:5000").Code, "request at t=%ds", i*50)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	mw, err := RateLimit(client, 1, time.Minute, logger)
	require.NoError(t, err)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, post(h, "/api/login", "10.0.0.1:5000").Code)
	}
	assert.True(t, strings.Contains(buf.String(), "rate limit check failed"))
}

func TestRateLimit_RejectsBadConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tests := []struct {
		name   string
		client *redis.Client
		limit  int
		window time.Duration
	}{
		{"nil client", nil, 10, time.Minute},
		{"zero limit", client, 0, time.Minute},
		{"negative window", client, 10, -time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RateLimit(tt.client, tt.limit, tt.window, discardLogger())
			assert.Error(t, err)
		})
	}
}
