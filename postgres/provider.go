package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/gosom/scrapemate"

	"github.com/Vector/vector-trip-scraper/wanderlog"
)

const (
	statusNew    = "new"
	statusQueued = "queued"

	fetchBatch = 50
)

var _ scrapemate.JobProvider = (*provider)(nil)

// JobFactory builds the job for a queued trip URL.
type JobFactory func(url string, force bool) scrapemate.IJob

type provider struct {
	db      *sql.DB
	newJob  JobFactory
	mu      *sync.Mutex
	jobc    chan scrapemate.IJob
	errc    chan error
	started bool
}

// NewProvider returns a scrapemate job provider backed by the scrape_jobs
// table. Rows move from new to queued as they are handed out, so several
// workers can share one table.
func NewProvider(db *sql.DB, newJob JobFactory) scrapemate.JobProvider {
	return &provider{
		db:     db,
		newJob: newJob,
		mu:     &sync.Mutex{},
		errc:   make(chan error, 1),
		jobc:   make(chan scrapemate.IJob, fetchBatch),
	}
}

//nolint:gocritic // it contains about unnamed results
func (p *provider) Jobs(ctx context.Context) (<-chan scrapemate.IJob, <-chan error) {
	outc := make(chan scrapemate.IJob)
	errc := make(chan error, 1)

	p.mu.Lock()
	if !p.started {
		go p.fetchJobs(ctx)

		p.started = true
	}
	p.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-p.errc:
				if ok {
					errc <- err
				}

				return
			case job, ok := <-p.jobc:
				if !ok {
					return
				}

				select {
				case outc <- job:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return outc, errc
}

// Push queues a trip job.
func (p *provider) Push(ctx context.Context, job scrapemate.IJob) error {
	j, ok := job.(*wanderlog.TripJob)
	if !ok {
		return errors.New("invalid job type")
	}

	_, err := p.db.ExecContext(ctx, `INSERT INTO scrape_jobs (id, url, force, priority, created_at, status)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`,
		j.GetID(), j.URL, j.Force, j.GetPriority(), time.Now().UTC(), statusNew,
	)

	return err
}

func (p *provider) fetchJobs(ctx context.Context) {
	defer close(p.jobc)
	defer close(p.errc)

	const q = `
	WITH updated AS (
		UPDATE scrape_jobs
		SET status = $1
		WHERE id IN (
			SELECT id FROM scrape_jobs
			WHERE status = $2
			ORDER BY priority ASC, created_at ASC FOR UPDATE SKIP LOCKED
			LIMIT $3
		)
		RETURNING url, force, priority, created_at
	)
	SELECT url, force FROM updated ORDER BY priority ASC, created_at ASC`

	const (
		baseDelay = time.Second
		maxDelay  = time.Minute
	)

	delay := baseDelay
	jobs := make([]scrapemate.IJob, 0, fetchBatch)

	for {
		if ctx.Err() != nil {
			return
		}

		rows, err := p.db.QueryContext(ctx, q, statusQueued, statusNew, fetchBatch)
		if err != nil {
			p.errc <- err

			return
		}

		for rows.Next() {
			var (
				u     string
				force bool
			)

			if err := rows.Scan(&u, &force); err != nil {
				rows.Close()
				p.errc <- err

				return
			}

			jobs = append(jobs, p.newJob(u, force))
		}

		err = errors.Join(rows.Err(), rows.Close())
		if err != nil {
			p.errc <- err

			return
		}

		if len(jobs) == 0 {
			select {
			case <-time.After(delay):
				delay = min(delay*2, maxDelay)
			case <-ctx.Done():
				return
			}

			continue
		}

		delay = baseDelay

		for _, job := range jobs {
			select {
			case p.jobc <- job:
			case <-ctx.Done():
				return
			}
		}

		jobs = jobs[:0]
	}
}
