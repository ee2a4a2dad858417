package fetchers

import (
	"context"
	"errors"

	"github.com/gosom/scrapemate"
)

var _ scrapemate.HTTPFetcher = (*jsFetch)(nil)

// Opener opens browser sessions.
type Opener interface {
	Open(ctx context.Context) (*Session, error)
}

// NewFetcher returns a scrapemate fetcher that runs each job's browser
// actions in a session from opener. Up to poolSize idle sessions are kept
// for reuse.
func NewFetcher(opener Opener, poolSize int) scrapemate.HTTPFetcher {
	if poolSize <= 0 {
		poolSize = 1
	}

	return &jsFetch{
		opener: opener,
		pool:   make(chan *Session, poolSize),
	}
}

type jsFetch struct {
	opener Opener
	pool   chan *Session
}

func (o *jsFetch) getSession(ctx context.Context) (*Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case s := <-o.pool:
		return s, nil
	default:
		return o.opener.Open(ctx)
	}
}

func (o *jsFetch) putSession(ctx context.Context, s *Session) {
	select {
	case <-ctx.Done():
		_ = s.Close()
	case o.pool <- s:
	default:
		_ = s.Close()
	}
}

// Fetch runs the job's browser actions and returns their response.
func (o *jsFetch) Fetch(ctx context.Context, job scrapemate.IJob) scrapemate.Response {
	s, err := o.getSession(ctx)
	if err != nil {
		return scrapemate.Response{Error: err}
	}

	if job.GetTimeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.GetTimeout())

		defer cancel()
	}

	resp := job.BrowserActions(ctx, s.Page)

	// a failed page may be left mid-navigation; do not hand it to the next job
	if resp.Error != nil {
		_ = s.Close()
	} else {
		o.putSession(ctx, s)
	}

	return resp
}

// Close closes the idle sessions. Sessions still in use are closed by the
// fetch that holds them.
func (o *jsFetch) Close() error {
	var errs []error

	for {
		select {
		case s := <-o.pool:
			errs = append(errs, s.Close())
		default:
			return errors.Join(errs...)
		}
	}
}
