// Package wanderlog drives a browser page through a Wanderlog trip plan and
// reads what is needed out of it: the rendered DOM and the client state blob.
package wanderlog

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Page is the part of playwright.Page the scraper relies on.
type Page interface {
	Goto(url string, options ...playwright.PageGotoOptions) (playwright.Response, error)
	Reload(options ...playwright.PageReloadOptions) (playwright.Response, error)
	WaitForLoadState(options ...playwright.PageWaitForLoadStateOptions) error
	WaitForSelector(selector string, options ...playwright.PageWaitForSelectorOptions) (playwright.ElementHandle, error)
	Click(selector string, options ...playwright.PageClickOptions) error
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
	Content() (string, error)
	URL() string
	WaitForTimeout(timeout float64)
}

var _ Page = (playwright.Page)(nil)

const (
	BaseURL = "https://wanderlog.com/"
	Host    = "wanderlog.com"
)

func ctxWait(ctx context.Context, dur time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(dur):
	}
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}
