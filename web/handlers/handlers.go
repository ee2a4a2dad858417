package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/models"
	"github.com/Vector/vector-trip-scraper/scrapeapp"
)

// Dependencies aggregates shared services used by handlers.
type Dependencies struct {
	Logger   *zap.Logger
	Scraper  Scraper
	Trips    TripRepository
	Queue    Enqueuer
	Validate *validator.Validate
}

// HandlerGroup groups all handler categories for routing setup.
type HandlerGroup struct {
	API    *APIHandlers
	Health *HealthHandlers
}

func NewHandlerGroup(deps Dependencies) *HandlerGroup {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	if deps.Validate == nil {
		deps.Validate = validator.New()
	}

	return &HandlerGroup{
		API:    &APIHandlers{Deps: deps},
		Health: &HealthHandlers{Deps: deps},
	}
}

// APIHandlers contains the JSON API routes.
type APIHandlers struct{ Deps Dependencies }

type HealthHandlers struct{ Deps Dependencies }

type Scraper interface {
	Scrape(ctx context.Context, req scrapeapp.Request) (*scrapeapp.Result, error)
}

// TripRepository exposes read and delete operations on stored trips.
type TripRepository interface {
	ListTrips(ctx context.Context, limit, offset int) ([]models.Trip, error)
	GetTrip(ctx context.Context, id string) (*models.Bundle, error)
	DeleteTripByURL(ctx context.Context, sourceURL string) error
}

// Enqueuer hands a task to the background workers and returns its id.
type Enqueuer interface {
	EnqueueTask(ctx context.Context, taskType string, payload []byte, opts ...asynq.Option) (string, error)
	IsHealthy(ctx context.Context) bool
}

type apiError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func renderJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func renderError(w http.ResponseWriter, code int, msg string) {
	renderJSON(w, code, apiError{Error: msg})
}
