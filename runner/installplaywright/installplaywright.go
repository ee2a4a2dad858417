// Package installplaywright downloads the playwright driver and chromium so
// local browser sessions can launch. It is the image build step.
package installplaywright

import (
	"context"
	"fmt"
	"os"

	"github.com/playwright-community/playwright-go"

	"github.com/Vector/vector-trip-scraper/runner"
)

type installer struct {
	// empty keeps playwright's default; the lambda image sets /opt/ms-playwright-go
	driverDir string
}

func New(cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeInstallPlaywright {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	return &installer{driverDir: os.Getenv("PLAYWRIGHT_DRIVER_PATH")}, nil
}

func (i *installer) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := &playwright.RunOptions{
		Browsers:        []string{"chromium"},
		DriverDirectory: i.driverDir,
		Verbose:         true,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	return nil
}

func (i *installer) Close(context.Context) error {
	return nil
}
