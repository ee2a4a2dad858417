package wanderlog

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type ScrollOptions struct {
	Step     int
	Distance int
	Delay    time.Duration
}

func DefaultScrollOptions() ScrollOptions {
	return ScrollOptions{
		Step:     500,
		Distance: 6000,
		Delay:    150 * time.Millisecond,
	}
}

const (
	scrollToJS = `(y) => { window.scrollTo(0, y); return document.body ? document.body.scrollHeight : 0; }`

	promoteLazyImagesJS = `() => {
		let n = 0;
		document.querySelectorAll('img[data-src], img[data-lazy], img[data-lazy-src]').forEach((img) => {
			const src = img.dataset.src || img.dataset.lazy || img.dataset.lazySrc;
			if (src && img.src !== src) { img.src = src; n++; }
		});
		return n;
	}`
)

// TriggerLazyLoad scrolls the page down in fixed steps so deferred images
// start loading, then returns to the top. It never fails; a page that cannot
// be scrolled is simply extracted as is.
func TriggerLazyLoad(ctx context.Context, page Page, opts ScrollOptions, log *zap.Logger) {
	if opts.Step <= 0 {
		opts = DefaultScrollOptions()
	}

	steps := 0

	for y := opts.Step; y <= opts.Distance; y += opts.Step {
		if ctx.Err() != nil {
			return
		}

		height, err := page.Evaluate(scrollToJS, y)
		if err != nil {
			log.Debug("scroll step failed", zap.Int("y", y), zap.Error(err))

			break
		}

		steps++

		ctxWait(ctx, opts.Delay)

		// nothing left to reveal below this point
		if h, ok := toInt(height); ok && h > 0 && y >= h {
			break
		}
	}

	promoted, err := page.Evaluate(promoteLazyImagesJS)
	if err != nil {
		log.Debug("lazy image promotion failed", zap.Error(err))
	}

	_, _ = page.Evaluate(scrollToJS, 0)

	log.Debug("lazy load triggered", zap.Int("steps", steps), zap.Any("promoted", promoted))
}
