package wanderlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTriggerLazyLoad(t *testing.T) {
	t.Run("[success scenario] - stops once past the page height", func(t *testing.T) {
		var scrolls []any

		promoted := false

		page := &fakePage{
			evaluateFn: func(expr string, args ...any) (any, error) {
				switch expr {
				case scrollToJS:
					scrolls = append(scrolls, args[0])

					return 1200, nil
				case promoteLazyImagesJS:
					promoted = true

					return 3, nil
				}

				return nil, errFake
			},
		}

		TriggerLazyLoad(context.Background(), page, ScrollOptions{Step: 500, Distance: 6000, Delay: time.Millisecond}, zap.NewNop())

		// three steps down, then back to the top
		assert.Equal(t, []any{500, 1000, 1500, 0}, scrolls)
		assert.True(t, promoted)
	})

	t.Run("[failure scenario] - scroll errors are swallowed", func(t *testing.T) {
		page := &fakePage{}

		assert.NotPanics(t, func() {
			TriggerLazyLoad(context.Background(), page, DefaultScrollOptions(), zap.NewNop())
		})
	})
}
