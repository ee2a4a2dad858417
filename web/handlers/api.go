package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/models"
	"github.com/Vector/vector-trip-scraper/postgres"
	"github.com/Vector/vector-trip-scraper/redis/tasks"
	"github.com/Vector/vector-trip-scraper/scrapeapp"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	asyncUniqueTTL   = 10 * time.Minute
)

type scrapeResponse struct {
	Success  bool                  `json:"success"`
	TripID   string                `json:"tripId"`
	Existing bool                  `json:"existing,omitempty"`
	Message  string                `json:"message"`
	Duration string                `json:"duration,omitempty"`
	Stats    *models.Stats         `json:"stats,omitempty"`
	Data     scrapeapp.TripSummary `json:"data"`
	Hint     string                `json:"hint,omitempty"`
}

type asyncResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"taskId"`
	Message string `json:"message"`
}

// Scrape serves both GET ?url=&force= and a POST {url, force} body.
func (h *APIHandlers) Scrape(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()

	res, err := h.Deps.Scraper.Scrape(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, scrapeapp.ErrInvalidURL):
			renderError(w, http.StatusBadRequest, "Invalid URL. Must be a wanderlog.com trip URL")
		case errors.Is(err, scrapeapp.ErrScrapeInProgress):
			renderError(w, http.StatusConflict, "A scrape of this trip is already running")
		default:
			h.Deps.Logger.Error("scrape failed", zap.String("url", req.URL), zap.Error(err))

			renderJSON(w, http.StatusInternalServerError, apiError{
				Error:   "Failed to scrape trip",
				Message: fmt.Sprintf("failed after %s", formatDuration(time.Since(start))),
			})
		}

		return
	}

	ans := scrapeResponse{
		Success:  true,
		TripID:   res.TripID,
		Existing: res.Existing,
		Message:  res.Message,
		Data:     res.Trip,
	}

	if res.Existing {
		ans.Hint = "Use force=true to re-scrape"
	} else {
		stats := res.Stats
		ans.Stats = &stats
		ans.Duration = formatDuration(res.Duration)
	}

	renderJSON(w, http.StatusOK, ans)
}

// ScrapeAsync queues the scrape for the background workers.
func (h *APIHandlers) ScrapeAsync(w http.ResponseWriter, r *http.Request) {
	if h.Deps.Queue == nil {
		renderError(w, http.StatusServiceUnavailable, "Background queue is not configured")

		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	target, err := scrapeapp.ValidateURL(req.URL)
	if err != nil {
		renderError(w, http.StatusBadRequest, "Invalid URL. Must be a wanderlog.com trip URL")

		return
	}

	payload, err := json.Marshal(tasks.ScrapePayload{URL: target, Force: req.Force})
	if err != nil {
		renderError(w, http.StatusInternalServerError, "Failed to queue scrape")

		return
	}

	id, err := h.Deps.Queue.EnqueueTask(r.Context(), tasks.TypeScrapeTrip, payload, asynq.Unique(asyncUniqueTTL))
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			renderError(w, http.StatusConflict, "A scrape of this trip is already queued")

			return
		}

		h.Deps.Logger.Error("could not enqueue scrape", zap.String("url", target), zap.Error(err))
		renderError(w, http.StatusInternalServerError, "Failed to queue scrape")

		return
	}

	renderJSON(w, http.StatusAccepted, asyncResponse{Success: true, TaskID: id, Message: "Scrape queued"})
}

func (h *APIHandlers) ListTrips(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	offset := max(queryInt(r, "offset", 0), 0)

	trips, err := h.Deps.Trips.ListTrips(r.Context(), limit, offset)
	if err != nil {
		h.Deps.Logger.Error("could not list trips", zap.Error(err))
		renderError(w, http.StatusInternalServerError, "Failed to list trips")

		return
	}

	renderJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"trips":   trips,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *APIHandlers) GetTrip(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	bundle, err := h.Deps.Trips.GetTrip(r.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			renderError(w, http.StatusNotFound, "Trip not found")

			return
		}

		h.Deps.Logger.Error("could not load trip", zap.String("trip_id", id), zap.Error(err))
		renderError(w, http.StatusInternalServerError, "Failed to load trip")

		return
	}

	renderJSON(w, http.StatusOK, bundle)
}

// DeleteTrip removes the trip stored for ?url= together with its children.
func (h *APIHandlers) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	target, err := scrapeapp.ValidateURL(r.URL.Query().Get("url"))
	if err != nil {
		renderError(w, http.StatusBadRequest, "Invalid URL. Must be a wanderlog.com trip URL")

		return
	}

	if err := h.Deps.Trips.DeleteTripByURL(r.Context(), target); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			renderError(w, http.StatusNotFound, "Trip not found")

			return
		}

		h.Deps.Logger.Error("could not delete trip", zap.String("url", target), zap.Error(err))
		renderError(w, http.StatusInternalServerError, "Failed to delete trip")

		return
	}

	renderJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Trip deleted"})
}

func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	queue := "disabled"

	if h.Deps.Queue != nil {
		queue = "up"
		if !h.Deps.Queue.IsHealthy(r.Context()) {
			queue = "down"
		}
	}

	renderJSON(w, http.StatusOK, map[string]string{"status": "ok", "queue": queue})
}

func (h *APIHandlers) decodeRequest(w http.ResponseWriter, r *http.Request) (scrapeapp.Request, bool) {
	var req scrapeapp.Request

	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			renderError(w, http.StatusBadRequest, "Invalid JSON body")

			return req, false
		}
	} else {
		req.URL = r.URL.Query().Get("url")
		req.Force, _ = strconv.ParseBool(r.URL.Query().Get("force"))
	}

	if err := h.Deps.Validate.Struct(req); err != nil {
		renderJSON(w, http.StatusBadRequest, apiError{
			Error:   "A valid url is required",
			Message: err.Error(),
			Hint:    "https://wanderlog.com/view/<id>/<slug>",
		})

		return req, false
	}

	return req, true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}

	return v
}

func formatDuration(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 2, 64) + "s"
}
