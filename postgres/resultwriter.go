package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gosom/scrapemate"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/exiter"
	"github.com/Vector/vector-trip-scraper/models"
	"github.com/Vector/vector-trip-scraper/wanderlog"
)

// BundleBuilder relays the images of an extraction and normalizes it.
type BundleBuilder interface {
	Build(ctx context.Context, ex *wanderlog.Extraction) models.Bundle
}

type ResultWriterOption func(*resultWriter)

// WithExitMonitor counts every trip the writer handles, stored or not.
func WithExitMonitor(ex exiter.Exiter) ResultWriterOption {
	return func(r *resultWriter) {
		r.exitMonitor = ex
	}
}

// NewResultWriter persists the trips a scrapemate crawl produces. A trip that
// cannot be stored is logged and skipped so the rest of the batch goes on.
func NewResultWriter(store *Store, builder BundleBuilder, log *zap.Logger, opts ...ResultWriterOption) scrapemate.ResultWriter {
	w := &resultWriter{store: store, builder: builder, log: log}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

type resultWriter struct {
	store       *Store
	builder     BundleBuilder
	log         *zap.Logger
	exitMonitor exiter.Exiter
}

func (r *resultWriter) Run(ctx context.Context, in <-chan scrapemate.Result) error {
	for result := range in {
		res, ok := result.Data.(*wanderlog.JobResult)
		if !ok {
			return fmt.Errorf("invalid data type %T", result.Data)
		}

		if err := r.save(ctx, res); err != nil {
			r.log.Error("could not store trip", zap.String("url", res.Extraction.URL), zap.Error(err))
		}

		if r.exitMonitor != nil {
			r.exitMonitor.IncrTripsCompleted(1)
		}
	}

	return nil
}

func (r *resultWriter) save(ctx context.Context, res *wanderlog.JobResult) error {
	if !res.Force {
		exists, err := r.store.TripExists(ctx, res.Extraction.URL)
		if err != nil {
			return err
		}

		if exists {
			r.log.Info("trip already stored", zap.String("url", res.Extraction.URL))

			return nil
		}
	}

	bundle := r.builder.Build(ctx, res.Extraction)

	out, err := r.store.WriteTrip(ctx, &bundle, WriteOptions{Force: res.Force})
	if err != nil {
		if errors.Is(err, ErrTripExists) {
			r.log.Info("trip stored concurrently", zap.String("url", res.Extraction.URL))

			return nil
		}

		return err
	}

	r.log.Info("trip saved", zap.String("trip_id", out.TripID), zap.Any("stats", bundle.Stats()))

	return nil
}
