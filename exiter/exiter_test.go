package exiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestExiterCancelsWhenAllSeedsFinish(t *testing.T) {
	e := New(zap.NewNop()).(*exiter)
	e.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.SetSeedCount(3)
	e.SetCancelFunc(cancel)

	done := make(chan struct{})

	go func() {
		e.Run(ctx)
		close(done)
	}()

	e.IncrTripsCompleted(2)

	select {
	case <-ctx.Done():
		t.Fatal("cancelled before every seed finished")
	case <-time.After(30 * time.Millisecond):
	}

	e.IncrTripsFailed(1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("exiter did not stop")
	}

	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	completed, failed, total := e.Progress()
	assert.Equal(t, 2, completed)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, total)
}

func TestExiterWithoutSeedsNeverCancels(t *testing.T) {
	e := New(zap.NewNop()).(*exiter)
	e.interval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	e.SetCancelFunc(func() { called = true })

	e.Run(ctx)

	assert.False(t, called)
}
