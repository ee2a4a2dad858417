// Package web serves the trip scrape HTTP API.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/web/handlers"
	"github.com/Vector/vector-trip-scraper/web/middleware"
)

const (
	DefaultScrapesPerMinute = 5
	shutdownTimeout         = 15 * time.Second
)

type Config struct {
	Addr string
	Deps handlers.Dependencies
	// ScrapesPerMinute is the per client budget for the scrape routes.
	ScrapesPerMinute int
}

// NewRouter registers the API routes. Scrape routes share one rate limiter;
// reads are not limited.
func NewRouter(deps handlers.Dependencies, limiter *middleware.Limiter) http.Handler {
	group := handlers.NewHandlerGroup(deps)

	r := mux.NewRouter()

	r.HandleFunc("/health", group.Health.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	limited := middleware.RateLimit(limiter)

	api.Handle("/scrape", limited(http.HandlerFunc(group.API.Scrape))).Methods(http.MethodGet, http.MethodPost)
	api.Handle("/scrape/async", limited(http.HandlerFunc(group.API.ScrapeAsync))).Methods(http.MethodPost)

	api.HandleFunc("/trips", group.API.ListTrips).Methods(http.MethodGet)
	api.HandleFunc("/trips", group.API.DeleteTrip).Methods(http.MethodDelete)
	api.HandleFunc("/trips/{id}", group.API.GetTrip).Methods(http.MethodGet)

	return middleware.Chain(r,
		middleware.RequestLogger(group.API.Deps.Logger),
		middleware.CORS,
		middleware.SecurityHeaders,
	)
}

// Start serves until ctx is done, then shuts the server down gracefully.
func Start(ctx context.Context, cfg Config) error {
	log := cfg.Deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	perMinute := cfg.ScrapesPerMinute
	if perMinute <= 0 {
		perMinute = DefaultScrapesPerMinute
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg.Deps, middleware.NewLimiter(perMinute, time.Minute)),
		ReadHeaderTimeout: 10 * time.Second,
		// a synchronous scrape can take minutes
		WriteTimeout: 10 * time.Minute,
	}

	errc := make(chan error, 1)

	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Addr))

		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("http server stopped")

	return nil
}
