package wanderlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrNavigationFailed = errors.New("navigation failed")

const (
	defaultNavTimeout  = 30 * time.Second
	defaultIdleTimeout = 10 * time.Second
	cookieClickTimeout = 2 * time.Second

	contentSelector = `[data-testid="trip-plan"], .TripPlanView, [class*="PlanSection"], h1`
	titleSelector   = `h1, [data-testid="trip-title"]`
)

var cookieSelectors = []string{
	`#onetrust-accept-btn-handler`,
	`button[aria-label="Accept cookies"]`,
	`button[aria-label="Accept all"]`,
	`[data-testid="cookie-accept"]`,
	`.cookie-banner button`,
	`button:has-text("Accept")`,
	`button:has-text("Got it")`,
}

// Strategy is one way of getting a page to show the target URL.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, page Page, target string) error
}

type Navigator struct {
	strategies  []Strategy
	navTimeout  time.Duration
	idleTimeout time.Duration
	log         *zap.Logger
}

type NavigatorOption func(*Navigator)

// WithStrategies replaces the default strategy chain.
func WithStrategies(strategies ...Strategy) NavigatorOption {
	return func(n *Navigator) {
		n.strategies = strategies
	}
}

func WithNavigationTimeout(d time.Duration) NavigatorOption {
	return func(n *Navigator) {
		n.navTimeout = d
	}
}

func WithIdleTimeout(d time.Duration) NavigatorOption {
	return func(n *Navigator) {
		n.idleTimeout = d
	}
}

func NewNavigator(log *zap.Logger, opts ...NavigatorOption) *Navigator {
	n := &Navigator{
		navTimeout:  defaultNavTimeout,
		idleTimeout: defaultIdleTimeout,
		log:         log,
	}

	for _, opt := range opts {
		opt(n)
	}

	if n.strategies == nil {
		n.strategies = []Strategy{
			DirectStrategy(n.navTimeout, n.idleTimeout),
			ViaHomepageStrategy(n.navTimeout),
			ReloadStrategy(n.navTimeout),
		}
	}

	return n
}

// Navigate tries each strategy in order until one of them leaves the page on
// the target URL with its content rendered.
func (n *Navigator) Navigate(ctx context.Context, page Page, target string) error {
	var errs error

	for i, s := range n.strategies {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()

		err := s.Run(ctx, page, target)
		if err == nil {
			n.log.Debug("navigation succeeded",
				zap.String("strategy", s.Name),
				zap.Int("attempt", i+1),
				zap.Duration("elapsed", time.Since(start)),
			)

			return nil
		}

		n.log.Warn("navigation strategy failed",
			zap.String("strategy", s.Name),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)

		errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}

	return fmt.Errorf("%w: %s: %w", ErrNavigationFailed, target, errs)
}

// DirectStrategy loads the target and waits for DOM content, then gives the
// network a short while to go idle.
func DirectStrategy(timeout, idle time.Duration) Strategy {
	return Strategy{
		Name: "direct",
		Run: func(_ context.Context, page Page, target string) error {
			_, err := page.Goto(target, playwright.PageGotoOptions{
				WaitUntil: playwright.WaitUntilStateDomcontentloaded,
				Timeout:   ms(timeout),
			})
			if err != nil {
				return err
			}

			// idle is best effort: long polling keeps some pages busy forever
			_ = page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
				State:   playwright.LoadStateNetworkidle,
				Timeout: ms(idle),
			})

			dismissCookieDialog(page)

			return nil
		},
	}
}

// ViaHomepageStrategy visits the site root first so the session picks up
// cookies, then opens the target and waits for whichever comes first: DOM
// ready or the plan content showing up.
func ViaHomepageStrategy(timeout time.Duration) Strategy {
	return Strategy{
		Name: "via-homepage",
		Run: func(ctx context.Context, page Page, target string) error {
			_, err := page.Goto(BaseURL, playwright.PageGotoOptions{
				WaitUntil: playwright.WaitUntilStateDomcontentloaded,
				Timeout:   ms(timeout),
			})
			if err != nil {
				return fmt.Errorf("homepage: %w", err)
			}

			_ = page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
				State:   playwright.LoadStateLoad,
				Timeout: ms(timeout / 2),
			})

			dismissCookieDialog(page)

			ctxWait(ctx, time.Second)

			_, err = page.Goto(target, playwright.PageGotoOptions{
				WaitUntil: playwright.WaitUntilStateCommit,
				Timeout:   ms(timeout),
			})
			if err != nil {
				return err
			}

			return raceReady(page, timeout)
		},
	}
}

// ReloadStrategy reloads whatever the page holds and waits for a title.
func ReloadStrategy(timeout time.Duration) Strategy {
	return Strategy{
		Name: "reload",
		Run: func(_ context.Context, page Page, target string) error {
			_, err := page.Reload(playwright.PageReloadOptions{
				WaitUntil: playwright.WaitUntilStateDomcontentloaded,
				Timeout:   ms(timeout),
			})
			if err != nil {
				return err
			}

			_, err = page.WaitForSelector(titleSelector, playwright.PageWaitForSelectorOptions{
				State:   playwright.WaitForSelectorStateAttached,
				Timeout: ms(timeout),
			})
			if err != nil {
				return err
			}

			dismissCookieDialog(page)

			return nil
		},
	}
}

func raceReady(page Page, timeout time.Duration) error {
	results := make(chan error, 2)

	go func() {
		results <- page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateDomcontentloaded,
			Timeout: ms(timeout),
		})
	}()

	go func() {
		_, err := page.WaitForSelector(contentSelector, playwright.PageWaitForSelectorOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: ms(timeout),
		})
		results <- err
	}()

	first := <-results
	if first == nil {
		return nil
	}

	if second := <-results; second == nil {
		return nil
	}

	return first
}

const findCookieButtonJS = `(selectors) => {
	for (let i = 0; i < selectors.length; i++) {
		try {
			if (document.querySelector(selectors[i])) return i;
		} catch (e) {}
	}
	return -1;
}`

// dismissCookieDialog clicks the first cookie consent button present on the
// page. Failing to find or click one is not an error.
func dismissCookieDialog(page Page) {
	// querySelector throws on playwright-only selectors such as :has-text,
	// those are tried with Click below
	res, err := page.Evaluate(findCookieButtonJS, cookieSelectors)
	if err == nil {
		if idx, ok := toInt(res); ok && idx >= 0 && idx < len(cookieSelectors) {
			_ = page.Click(cookieSelectors[idx], playwright.PageClickOptions{Timeout: ms(cookieClickTimeout)})

			return
		}
	}

	for _, sel := range cookieSelectors {
		if !isPlaywrightOnly(sel) {
			continue
		}

		if err := page.Click(sel, playwright.PageClickOptions{Timeout: ms(cookieClickTimeout / 4)}); err == nil {
			return
		}
	}
}

func isPlaywrightOnly(sel string) bool {
	return containsAny(sel, ":has-text(", ":text(")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
