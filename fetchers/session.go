// Package fetchers opens the browser sessions scrapes run in, either a
// local Chromium driven by playwright or a remote one reached over CDP.
package fetchers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/browserbase"
)

const (
	defaultWidth, defaultHeight = 1920, 1080
	releaseTimeout              = 10 * time.Second
)

// cdpDialer connects to a browser already listening on a CDP websocket.
type cdpDialer func(wsURL string) (playwright.Browser, error)

// Session is one browser page plus everything that has to be torn down
// with it.
type Session struct {
	Page    playwright.Page
	closers []func() error
}

// Close releases the page, its browser and the playwright driver. It is
// safe to call more than once.
func (s *Session) Close() error {
	var errs []error

	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}

	s.closers = nil

	return errors.Join(errs...)
}

func (s *Session) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

type Options struct {
	Headless      bool
	DisableImages bool
	Proxies       *Rotator
	// CDPURL connects to an already running browser instead of launching one.
	CDPURL string
	// Browserbase, when set, creates a remote session per Open.
	Browserbase *browserbase.Client
}

type SessionFactory struct {
	opts Options
	log  *zap.Logger
}

func NewSessionFactory(opts Options, log *zap.Logger) *SessionFactory {
	return &SessionFactory{opts: opts, log: log}
}

// Remote reports whether sessions run on a remote browser.
func (f *SessionFactory) Remote() bool {
	return f.opts.Browserbase != nil || f.opts.CDPURL != ""
}

// Open starts a browser and returns a fresh page. Callers must Close the
// session, also on error paths after Open succeeded.
func (f *SessionFactory) Open(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	s := &Session{}
	s.onClose(pw.Stop)

	if f.Remote() {
		err = f.connect(ctx, func(wsURL string) (playwright.Browser, error) {
			return pw.Chromium.ConnectOverCDP(wsURL)
		}, s)
	} else {
		err = f.launch(pw, s)
	}

	if err != nil {
		_ = s.Close()

		return nil, err
	}

	return s, nil
}

func (f *SessionFactory) launch(pw *playwright.Playwright, s *Session) error {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(f.opts.Headless),
		Args: []string{
			`--start-maximized`,
			`--no-default-browser-check`,
		},
	}

	if f.opts.DisableImages {
		opts.Args = append(opts.Args, `--blink-settings=imagesEnabled=false`)
	}

	br, err := pw.Chromium.Launch(opts)
	if err != nil {
		return fmt.Errorf("failed to launch chromium: %w", err)
	}

	s.onClose(func() error { return br.Close() })

	bctx, err := br.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  defaultWidth,
			Height: defaultHeight,
		},
		Proxy: f.opts.Proxies.pwProxy(),
	})
	if err != nil {
		return fmt.Errorf("failed to create browser context: %w", err)
	}

	s.onClose(func() error { return bctx.Close() })

	page, err := bctx.NewPage()
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}

	s.Page = page

	return nil
}

// connect attaches to a remote browser. A Browserbase session is released
// when s closes, also when connecting to it failed.
func (f *SessionFactory) connect(ctx context.Context, dial cdpDialer, s *Session) error {
	wsURL := f.opts.CDPURL

	if f.opts.Browserbase != nil {
		bs, err := f.opts.Browserbase.CreateSession(ctx)
		if err != nil {
			return err
		}

		f.log.Info("remote browser session created", zap.String("session_id", bs.ID))

		s.onClose(f.releaseSession(bs.ID))

		wsURL = bs.ConnectURL
	}

	br, err := dial(wsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to remote browser: %w", err)
	}

	s.onClose(func() error { return br.Close() })

	var bctx playwright.BrowserContext

	if contexts := br.Contexts(); len(contexts) > 0 {
		bctx = contexts[0]
	} else {
		bctx, err = br.NewContext(playwright.BrowserNewContextOptions{
			Viewport: &playwright.Size{Width: defaultWidth, Height: defaultHeight},
		})
		if err != nil {
			return fmt.Errorf("failed to create browser context: %w", err)
		}
	}

	if pages := bctx.Pages(); len(pages) > 0 {
		s.Page = pages[0]

		return nil
	}

	page, err := bctx.NewPage()
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}

	s.Page = page

	return nil
}

func (f *SessionFactory) releaseSession(id string) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if err := f.opts.Browserbase.ReleaseSession(ctx, id); err != nil {
			f.log.Warn("could not release remote browser session", zap.String("session_id", id), zap.Error(err))

			return err
		}

		return nil
	}
}
