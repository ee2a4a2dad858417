package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gosom/scrapemate"

	"github.com/Vector/vector-trip-scraper/deduper"
	"github.com/Vector/vector-trip-scraper/exiter"
	"github.com/Vector/vector-trip-scraper/scrapeapp"
	"github.com/Vector/vector-trip-scraper/wanderlog"
)

// CreateSeedJobs reads one trip URL per line. Blank lines and # comments are
// skipped, repeated URLs are seeded once, and any other line must be a
// wanderlog trip URL.
func CreateSeedJobs(
	r io.Reader,
	extractor *wanderlog.Extractor,
	force bool,
	dedup deduper.Deduper,
	exitMonitor exiter.Exiter,
) (jobs []scrapemate.IJob, err error) {
	if dedup == nil {
		dedup = deduper.New()
	}

	scanner := bufio.NewScanner(r)

	line := 0

	for scanner.Scan() {
		line++

		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		target, err := scrapeapp.ValidateURL(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		if !dedup.AddIfNotExists(context.Background(), target) {
			continue
		}

		opts := []wanderlog.TripJobOption{wanderlog.WithForce(force)}
		if exitMonitor != nil {
			opts = append(opts, wanderlog.WithExitMonitor(exitMonitor))
		}

		jobs = append(jobs, wanderlog.NewTripJob(target, extractor, opts...))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}
