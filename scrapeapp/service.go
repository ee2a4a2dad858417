// Package scrapeapp runs one trip scrape end to end: browser session,
// extraction, image relay, normalization and persistence.
package scrapeapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/fetchers"
	"github.com/Vector/vector-trip-scraper/models"
	"github.com/Vector/vector-trip-scraper/postgres"
	"github.com/Vector/vector-trip-scraper/tlmt"
	"github.com/Vector/vector-trip-scraper/wanderlog"
)

var (
	ErrInvalidURL       = errors.New("invalid wanderlog trip url")
	ErrScrapeInProgress = errors.New("a scrape of this trip is already running")
)

const (
	MsgScraped  = "Trip scraped successfully"
	MsgExisting = "Trip already exists"
	MsgPartial  = "Trip scraped with missing sections"

	lockTTL = 10 * time.Minute
)

type Request struct {
	URL   string `json:"url" validate:"required,url"`
	Force bool   `json:"force"`
}

type TripSummary struct {
	Title     string `json:"title"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	Creator   string `json:"creator,omitempty"`
}

type Result struct {
	TripID   string        `json:"tripId"`
	Existing bool          `json:"existing"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"-"`
	Stats    models.Stats  `json:"stats"`
	Trip     TripSummary   `json:"data"`
}

// TripStore is the persistence the service needs.
type TripStore interface {
	GetTripByURL(ctx context.Context, sourceURL string) (*models.Trip, error)
	WriteTrip(ctx context.Context, b *models.Bundle, opts postgres.WriteOptions) (*postgres.WriteResult, error)
}

// Locker serializes scrapes of the same URL across processes. TryLock
// reports false when someone else holds key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type Extractor interface {
	Run(ctx context.Context, page wanderlog.Page, target string) (*wanderlog.Extraction, error)
}

type Builder interface {
	Build(ctx context.Context, ex *wanderlog.Extraction) models.Bundle
}

type Service struct {
	store     TripStore
	sessions  fetchers.Opener
	extractor Extractor
	builder   Builder
	locker    Locker
	telemetry tlmt.Telemetry
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func WithTelemetry(t tlmt.Telemetry) Option {
	return func(s *Service) {
		s.telemetry = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store TripStore, sessions fetchers.Opener, extractor Extractor, builder Builder, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		sessions:  sessions,
		extractor: extractor,
		builder:   builder,
		log:       log,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Scrape fetches a trip and stores it. Without Force an already stored trip
// is returned as is and no browser is opened.
func (s *Service) Scrape(ctx context.Context, req Request) (*Result, error) {
	start := s.now()

	target, err := ValidateURL(req.URL)
	if err != nil {
		return nil, err
	}

	log := s.log.With(zap.String("url", target), zap.Bool("force", req.Force))

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, "scrape:"+target, lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to lock trip: %w", err)
		}

		if !ok {
			return nil, ErrScrapeInProgress
		}

		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("could not release scrape lock", zap.Error(err))
			}
		}()
	}

	if !req.Force {
		if res, err := s.existing(ctx, target, start); res != nil || err != nil {
			return res, err
		}
	}

	sess, err := s.sessions.Open(ctx)
	if err != nil {
		s.track(ctx, tlmt.EventScrapeFailed, map[string]any{"stage": "session"})

		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}

	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("could not close browser session", zap.Error(err))
		}
	}()

	res, err := s.ScrapeWithPage(ctx, sess.Page, Request{URL: target, Force: req.Force})
	if err != nil {
		return nil, err
	}

	res.Duration = s.now().Sub(start)

	log.Info("trip scraped", zap.String("trip_id", res.TripID), zap.Duration("duration", res.Duration))

	return res, nil
}

// ScrapeWithPage runs the pipeline on a page the caller owns.
func (s *Service) ScrapeWithPage(ctx context.Context, page wanderlog.Page, req Request) (*Result, error) {
	start := s.now()

	ex, err := s.extractor.Run(ctx, page, req.URL)
	if err != nil {
		s.track(ctx, tlmt.EventScrapeFailed, map[string]any{"stage": "navigation"})

		return nil, err
	}

	bundle := s.builder.Build(ctx, ex)

	out, err := s.store.WriteTrip(ctx, &bundle, postgres.WriteOptions{Force: req.Force})
	if err != nil {
		if errors.Is(err, postgres.ErrTripExists) {
			// stored by a concurrent scrape since the existence check
			if res, lookupErr := s.existing(ctx, req.URL, start); res != nil || lookupErr != nil {
				return res, lookupErr
			}
		}

		s.track(ctx, tlmt.EventScrapeFailed, map[string]any{"stage": "persist"})

		return nil, err
	}

	res := &Result{
		TripID:   out.TripID,
		Message:  MsgScraped,
		Duration: s.now().Sub(start),
		Stats:    bundle.Stats(),
		Trip:     summarize(&bundle.Trip),
	}

	if out.Partial != nil {
		res.Message = MsgPartial

		s.log.Warn("trip stored partially", zap.String("trip_id", out.TripID), zap.Error(out.Partial))
	}

	s.track(ctx, tlmt.EventTripScraped, map[string]any{
		"state_found": ex.StateFound,
		"activities":  res.Stats.Activities,
		"images":      res.Stats.Images,
		"forced":      req.Force,
	})

	return res, nil
}

func (s *Service) existing(ctx context.Context, target string, start time.Time) (*Result, error) {
	t, err := s.store.GetTripByURL(ctx, target)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return &Result{
		TripID:   t.ID,
		Existing: true,
		Message:  MsgExisting,
		Duration: s.now().Sub(start),
		Trip:     summarize(t),
	}, nil
}

func (s *Service) track(ctx context.Context, name string, props map[string]any) {
	if s.telemetry == nil {
		return
	}

	if err := s.telemetry.Send(ctx, tlmt.NewEvent(name, props)); err != nil {
		s.log.Debug("telemetry send failed", zap.Error(err))
	}
}

func summarize(t *models.Trip) TripSummary {
	return TripSummary{
		Title:     t.Title,
		StartDate: t.StartDate,
		EndDate:   t.EndDate,
		Creator:   t.Creator,
	}
}
