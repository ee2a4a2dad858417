package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestChainOrder(t *testing.T) {
	var calls []string

	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls = append(calls, "handler")
	}), mw("first"), mw("second"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Equal(t, []string{"first", "second", "handler"}, calls)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{name: "[success scenario] - first forwarded address", forwarded: "203.0.113.7, 10.0.0.1", remoteAddr: "10.0.0.1:1234", want: "203.0.113.7"},
		{name: "[success scenario] - remote address without header", remoteAddr: "192.0.2.10:5555", want: "192.0.2.10"},
		{name: "[success scenario] - blank header falls back", forwarded: " , 10.0.0.1", remoteAddr: "192.0.2.10:5555", want: "192.0.2.10"},
		{name: "[success scenario] - remote address without port", remoteAddr: "pipe", want: "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			r.RemoteAddr = tt.remoteAddr

			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	t.Run("[success scenario] - preflight short circuits", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/api/scrape", http.NoBody)
		r.Header.Set("Origin", "http://localhost:3000")

		rec := httptest.NewRecorder()
		CORS(next).ServeHTTP(rec, r)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("[success scenario] - other origins get a wildcard", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/trips", http.NoBody)
		r.Header.Set("Origin", "https://trips.example")

		rec := httptest.NewRecorder()
		CORS(next).ServeHTTP(rec, r)

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})
}

func TestLimiter(t *testing.T) {
	l := NewLimiter(2, time.Minute)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	// one token refills every 30s
	now = now.Add(31 * time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	// idle clients are forgotten
	now = now.Add(10 * time.Minute)
	assert.True(t, l.Allow("c"))

	l.mu.Lock()
	defer l.mu.Unlock()

	require.Len(t, l.clients, 1)
	assert.Contains(t, l.clients, "c")
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	h := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/trips/x", http.NoBody)
	r.Header.Set("X-Forwarded-For", "203.0.113.7")

	h.ServeHTTP(httptest.NewRecorder(), r)

	require.Equal(t, 1, logs.Len())

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "/api/trips/x", fields["path"])
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.Equal(t, "203.0.113.7", fields["ip"])
}
