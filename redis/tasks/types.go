package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task types
const (
	TypeScrapeTrip  = "scrape:trip"
	TypeHealthCheck = "health:check"
)

type ScrapePayload struct {
	URL   string `json:"url"`
	Force bool   `json:"force"`
}

func NewScrapeTask(payload ScrapePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scrape payload: %w", err)
	}

	return asynq.NewTask(TypeScrapeTrip, data), nil
}
