package fetchers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gosom/scrapemate"
	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/browserbase"
)

func TestRotator(t *testing.T) {
	r := NewRotator("http://a:1", "http://b:2")

	got := []string{r.Next(), r.Next(), r.Next()}
	assert.Equal(t, []string{"http://a:1", "http://b:2", "http://a:1"}, got)

	var empty *Rotator
	assert.Empty(t, empty.Next())
	assert.Nil(t, empty.pwProxy())
	assert.Empty(t, NewRotator().Next())
}

func TestLoadProxies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	require.NoError(t, os.WriteFile(path, []byte("# pool\nhttp://a:1\n\n  http://b:2  \n"), 0o600))

	got, err := LoadProxies(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a:1", "http://b:2"}, got)

	_, err = LoadProxies(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestSessionClose(t *testing.T) {
	var order []string

	s := &Session{}
	s.onClose(func() error { order = append(order, "driver"); return nil })
	s.onClose(func() error { order = append(order, "browser"); return errors.New("boom") })
	s.onClose(func() error { order = append(order, "context"); return nil })

	err := s.Close()
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"context", "browser", "driver"}, order)

	// second close is a no-op
	require.NoError(t, s.Close())
	assert.Len(t, order, 3)
}

func TestOpenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSessionFactory(Options{}, nil).Open(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnectReleasesBrowserbaseSession(t *testing.T) {
	var (
		mu       sync.Mutex
		released []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sessions":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"id":         "bb-1",
				"connectUrl": "wss://connect.example/bb-1",
			})
		case "/sessions/bb-1":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)

			mu.Lock()
			released = append(released, body["status"].(string))
			mu.Unlock()

			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	bb, err := browserbase.New("key", "project", browserbase.WithBaseURL(srv.URL))
	require.NoError(t, err)

	f := NewSessionFactory(Options{Browserbase: bb}, zap.NewNop())

	t.Run("[error scenario] - failed cdp connect still releases the session", func(t *testing.T) {
		mu.Lock()
		released = nil
		mu.Unlock()

		var dialed string

		s := &Session{}
		err := f.connect(context.Background(), func(wsURL string) (playwright.Browser, error) {
			dialed = wsURL

			return nil, errors.New("connection refused")
		}, s)
		require.ErrorContains(t, err, "connection refused")
		assert.Equal(t, "wss://connect.example/bb-1", dialed)

		require.NoError(t, s.Close())

		mu.Lock()
		defer mu.Unlock()

		assert.Equal(t, []string{"REQUEST_RELEASE"}, released)
	})

	t.Run("[error scenario] - release runs after the caller context is cancelled", func(t *testing.T) {
		mu.Lock()
		released = nil
		mu.Unlock()

		ctx, cancel := context.WithCancel(context.Background())

		s := &Session{}
		err := f.connect(ctx, func(string) (playwright.Browser, error) {
			cancel()

			return nil, context.Canceled
		}, s)
		require.ErrorIs(t, err, context.Canceled)

		require.NoError(t, s.Close())

		mu.Lock()
		defer mu.Unlock()

		assert.Len(t, released, 1)
	})
}

type countingOpener struct {
	opened int
	closed int
}

func (o *countingOpener) Open(context.Context) (*Session, error) {
	o.opened++

	s := &Session{}
	s.onClose(func() error { o.closed++; return nil })

	return s, nil
}

type pageJob struct {
	scrapemate.Job
	err error
}

func (j *pageJob) BrowserActions(context.Context, playwright.Page) scrapemate.Response {
	return scrapemate.Response{Error: j.err, StatusCode: 200}
}

func TestFetcherReusesSessions(t *testing.T) {
	opener := &countingOpener{}
	f := NewFetcher(opener, 1)

	ctx := context.Background()

	resp := f.Fetch(ctx, &pageJob{})
	require.NoError(t, resp.Error)

	resp = f.Fetch(ctx, &pageJob{})
	require.NoError(t, resp.Error)

	assert.Equal(t, 1, opener.opened)

	// a failed job drops its session
	resp = f.Fetch(ctx, &pageJob{err: errors.New("navigation failed")})
	require.Error(t, resp.Error)
	assert.Equal(t, 1, opener.closed)

	resp = f.Fetch(ctx, &pageJob{})
	require.NoError(t, resp.Error)
	assert.Equal(t, 2, opener.opened)

	closer, ok := f.(io.Closer)
	require.True(t, ok)
	require.NoError(t, closer.Close())
	assert.Equal(t, 2, opener.closed)
}
