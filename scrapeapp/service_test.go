package scrapeapp_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/fetchers"
	"github.com/Vector/vector-trip-scraper/models"
	"github.com/Vector/vector-trip-scraper/postgres"
	"github.com/Vector/vector-trip-scraper/scrapeapp"
	"github.com/Vector/vector-trip-scraper/wanderlog"
)

const tripURL = "https://wanderlog.com/view/abcdef/rockies-road-trip"

type fakeStore struct {
	mu       sync.Mutex
	trips    map[string]*models.Trip
	writes   []postgres.WriteOptions
	writeErr error
	partial  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{trips: make(map[string]*models.Trip)}
}

func (f *fakeStore) GetTripByURL(_ context.Context, u string) (*models.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.trips[u]
	if !ok {
		return nil, postgres.ErrNotFound
	}

	return t, nil
}

func (f *fakeStore) WriteTrip(_ context.Context, b *models.Bundle, opts postgres.WriteOptions) (*postgres.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.writes = append(f.writes, opts)

	if f.writeErr != nil {
		return nil, f.writeErr
	}

	t := b.Trip
	t.ID = "trip-1"
	f.trips[t.SourceURL] = &t

	return &postgres.WriteResult{TripID: t.ID, Partial: f.partial}, nil
}

type fakeOpener struct {
	opened int
	err    error
}

func (f *fakeOpener) Open(context.Context) (*fetchers.Session, error) {
	f.opened++

	if f.err != nil {
		return nil, f.err
	}

	return &fetchers.Session{}, nil
}

type fakeExtractor struct {
	err error
}

func (f fakeExtractor) Run(_ context.Context, _ wanderlog.Page, target string) (*wanderlog.Extraction, error) {
	if f.err != nil {
		return nil, f.err
	}

	return &wanderlog.Extraction{
		URL: target,
		DOM: wanderlog.DOMResult{Title: "Rockies Road Trip", Images: []string{"https://img/a.jpg"}},
		Data: wanderlog.StructuredData{
			StartDate:  "2025-07-13",
			Activities: []models.Activity{{Key: "place:p1", Name: "Lake Louise"}},
		},
		StateFound: true,
	}, nil
}

type fakeLocker struct {
	held     map[string]bool
	released []string
}

func (f *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(context.Context) error, bool, error) {
	if f.held[key] {
		return nil, false, nil
	}

	return func(context.Context) error {
		f.released = append(f.released, key)

		return nil
	}, true, nil
}

func newService(store *fakeStore, opener *fakeOpener, ex scrapeapp.Extractor, opts ...scrapeapp.Option) *scrapeapp.Service {
	builder := scrapeapp.NewPipeline(nil, nil, zap.NewNop())

	return scrapeapp.New(store, opener, ex, builder, zap.NewNop(), opts...)
}

func TestScrape(t *testing.T) {
	t.Run("[success scenario] - new trip", func(t *testing.T) {
		store := newFakeStore()
		opener := &fakeOpener{}

		res, err := newService(store, opener, fakeExtractor{}).Scrape(context.Background(), scrapeapp.Request{URL: tripURL})
		require.NoError(t, err)

		assert.Equal(t, "trip-1", res.TripID)
		assert.False(t, res.Existing)
		assert.Equal(t, scrapeapp.MsgScraped, res.Message)
		assert.Equal(t, "Rockies Road Trip", res.Trip.Title)
		assert.Equal(t, "2025-07-13", res.Trip.StartDate)
		assert.Equal(t, 1, res.Stats.Activities)
		assert.Equal(t, 1, res.Stats.Images)
		assert.Equal(t, res.Stats.ImageAssociation.Total,
			res.Stats.ImageAssociation.Associated+res.Stats.ImageAssociation.Unassociated)
		assert.Equal(t, 1, opener.opened)
	})

	t.Run("[success scenario] - existing trip skips the browser", func(t *testing.T) {
		store := newFakeStore()
		store.trips[tripURL] = &models.Trip{ID: "old", SourceURL: tripURL, Title: "Stored"}
		opener := &fakeOpener{}

		res, err := newService(store, opener, fakeExtractor{}).Scrape(context.Background(), scrapeapp.Request{URL: tripURL})
		require.NoError(t, err)

		assert.True(t, res.Existing)
		assert.Equal(t, "old", res.TripID)
		assert.Equal(t, scrapeapp.MsgExisting, res.Message)
		assert.Zero(t, opener.opened)
		assert.Empty(t, store.writes)
	})

	t.Run("[success scenario] - force rescrapes", func(t *testing.T) {
		store := newFakeStore()
		store.trips[tripURL] = &models.Trip{ID: "old", SourceURL: tripURL}

		res, err := newService(store, &fakeOpener{}, fakeExtractor{}).
			Scrape(context.Background(), scrapeapp.Request{URL: tripURL, Force: true})
		require.NoError(t, err)

		assert.Equal(t, "trip-1", res.TripID)
		require.Len(t, store.writes, 1)
		assert.True(t, store.writes[0].Force)
	})

	t.Run("[success scenario] - partial write is reported", func(t *testing.T) {
		store := newFakeStore()
		store.partial = errors.New("images: boom")

		res, err := newService(store, &fakeOpener{}, fakeExtractor{}).Scrape(context.Background(), scrapeapp.Request{URL: tripURL})
		require.NoError(t, err)
		assert.Equal(t, scrapeapp.MsgPartial, res.Message)
	})

	t.Run("[success scenario] - concurrent insert returns the stored trip", func(t *testing.T) {
		store := newFakeStore()
		store.writeErr = postgres.ErrTripExists

		svc := newService(store, &fakeOpener{}, fakeExtractor{})

		// nothing to fall back to
		_, err := svc.Scrape(context.Background(), scrapeapp.Request{URL: tripURL})
		assert.ErrorIs(t, err, postgres.ErrTripExists)

		// the winner is stored between the existence check and the write
		store.trips[tripURL] = &models.Trip{ID: "winner"}

		res, err := svc.ScrapeWithPage(context.Background(), nil, scrapeapp.Request{URL: tripURL})
		require.NoError(t, err)
		assert.True(t, res.Existing)
		assert.Equal(t, "winner", res.TripID)
	})

	t.Run("[error scenario] - invalid url", func(t *testing.T) {
		opener := &fakeOpener{}

		for _, u := range []string{"", "not a url", "https://example.com/view/abc", "ftp://wanderlog.com/view/x"} {
			_, err := newService(newFakeStore(), opener, fakeExtractor{}).Scrape(context.Background(), scrapeapp.Request{URL: u})
			assert.ErrorIs(t, err, scrapeapp.ErrInvalidURL, u)
		}

		assert.Zero(t, opener.opened)
	})

	t.Run("[error scenario] - scrape in progress", func(t *testing.T) {
		locker := &fakeLocker{held: map[string]bool{"scrape:" + tripURL: true}}

		_, err := newService(newFakeStore(), &fakeOpener{}, fakeExtractor{}, scrapeapp.WithLocker(locker)).
			Scrape(context.Background(), scrapeapp.Request{URL: tripURL})
		assert.ErrorIs(t, err, scrapeapp.ErrScrapeInProgress)
	})

	t.Run("[success scenario] - lock is released", func(t *testing.T) {
		locker := &fakeLocker{}

		_, err := newService(newFakeStore(), &fakeOpener{}, fakeExtractor{}, scrapeapp.WithLocker(locker)).
			Scrape(context.Background(), scrapeapp.Request{URL: tripURL})
		require.NoError(t, err)
		assert.Equal(t, []string{"scrape:" + tripURL}, locker.released)
	})

	t.Run("[error scenario] - session failure is fatal", func(t *testing.T) {
		_, err := newService(newFakeStore(), &fakeOpener{err: errors.New("no browser")}, fakeExtractor{}).
			Scrape(context.Background(), scrapeapp.Request{URL: tripURL})
		assert.ErrorContains(t, err, "no browser")
	})

	t.Run("[error scenario] - navigation failure is fatal", func(t *testing.T) {
		store := newFakeStore()

		_, err := newService(store, &fakeOpener{}, fakeExtractor{err: wanderlog.ErrNavigationFailed}).
			Scrape(context.Background(), scrapeapp.Request{URL: tripURL})
		assert.ErrorIs(t, err, wanderlog.ErrNavigationFailed)
		assert.Empty(t, store.writes)
	})
}
