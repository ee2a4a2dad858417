package wanderlog

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Extraction is everything read from one trip page.
type Extraction struct {
	URL        string         `json:"url"`
	DOM        DOMResult      `json:"dom"`
	Data       StructuredData `json:"data"`
	StateFound bool           `json:"state_found"`
	ScrapedAt  time.Time      `json:"scraped_at"`
}

// Extractor drives a page from navigation to extraction.
type Extractor struct {
	nav    *Navigator
	source StateSource
	scroll ScrollOptions
	log    *zap.Logger
	now    func() time.Time
}

type ExtractorOption func(*Extractor)

func WithStateSource(src StateSource) ExtractorOption {
	return func(e *Extractor) {
		e.source = src
	}
}

func WithScrollOptions(opts ScrollOptions) ExtractorOption {
	return func(e *Extractor) {
		e.scroll = opts
	}
}

func WithNavigator(nav *Navigator) ExtractorOption {
	return func(e *Extractor) {
		e.nav = nav
	}
}

func WithClock(now func() time.Time) ExtractorOption {
	return func(e *Extractor) {
		e.now = now
	}
}

func NewExtractor(log *zap.Logger, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		source: MobxSource{},
		scroll: DefaultScrollOptions(),
		log:    log,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.nav == nil {
		e.nav = NewNavigator(log)
	}

	return e
}

// Run navigates to target and extracts it. Only navigation can fail; the
// extraction stages degrade to empty results.
func (e *Extractor) Run(ctx context.Context, page Page, target string) (*Extraction, error) {
	if err := e.nav.Navigate(ctx, page, target); err != nil {
		return nil, err
	}

	TriggerLazyLoad(ctx, page, e.scroll, e.log)

	return e.Extract(ctx, page, target), nil
}

// Extract reads the DOM and the client state of an already loaded page in
// parallel.
func (e *Extractor) Extract(ctx context.Context, page Page, target string) *Extraction {
	ans := &Extraction{
		URL:       target,
		ScrapedAt: e.now().UTC(),
	}

	var (
		g     errgroup.Group
		state *State
	)

	g.Go(func() error {
		ans.DOM = ExtractDOM(ctx, page, e.log)

		return nil
	})

	g.Go(func() error {
		st, found, err := e.source.ExtractStructuredState(ctx, page)
		if err != nil {
			e.log.Warn("could not read trip state", zap.String("url", target), zap.Error(err))

			return nil
		}

		if found {
			state = st
		}

		return nil
	})

	_ = g.Wait()

	ans.StateFound = state != nil
	ans.Data = Project(state, ans.ScrapedAt)

	e.log.Info("trip extracted",
		zap.String("url", target),
		zap.Bool("state_found", ans.StateFound),
		zap.Int("dom_images", len(ans.DOM.Images)),
		zap.Int("activities", len(ans.Data.Activities)),
		zap.Int("schedule_days", len(ans.Data.Schedule)),
	)

	return ans
}
