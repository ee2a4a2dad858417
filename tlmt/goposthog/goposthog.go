// Package goposthog ships telemetry events to posthog in batches.
package goposthog

import (
	"context"
	"errors"
	"time"

	"github.com/posthog/posthog-go"

	"github.com/Vector/vector-trip-scraper/tlmt"
)

const (
	appName       = "vector-trip-scraper"
	flushInterval = 10 * time.Second
	batchSize     = 50
)

type service struct {
	client posthog.Client
}

func New(publicAPIKey, endpointURL string) (tlmt.Telemetry, error) {
	if publicAPIKey == "" {
		return nil, errors.New("posthog api key is required")
	}

	client, err := posthog.NewWithConfig(publicAPIKey, posthog.Config{
		Endpoint:  endpointURL,
		Interval:  flushInterval,
		BatchSize: batchSize,
	})
	if err != nil {
		return nil, err
	}

	return &service{client: client}, nil
}

func (s *service) Send(ctx context.Context, event tlmt.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	capture := toCapture(event)

	if err := capture.Validate(); err != nil {
		return err
	}

	return s.client.Enqueue(capture)
}

func (s *service) Close() error {
	if s.client == nil {
		return nil
	}

	return s.client.Close()
}

func toCapture(event tlmt.Event) posthog.Capture {
	props := posthog.NewProperties()

	for k, v := range event.Properties {
		props.Set(k, v)
	}

	props.Set("app", appName)

	return posthog.Capture{
		DistinctId: event.AnonymousID,
		Event:      event.Name,
		Properties: props,
	}
}
