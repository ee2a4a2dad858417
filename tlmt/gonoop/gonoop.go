// Package gonoop is the telemetry sink used when telemetry is disabled.
package gonoop

import (
	"context"

	"github.com/Vector/vector-trip-scraper/tlmt"
)

type service struct{}

func New() tlmt.Telemetry {
	return service{}
}

func (service) Send(context.Context, tlmt.Event) error {
	return nil
}

func (service) Close() error {
	return nil
}
