package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDriverRunsImmediatelyAndOnInterval(t *testing.T) {
	var runs atomic.Int32
	d := Driver{
		Name:     "test",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	d.Start(ctx, &wg)

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	wg.Wait()

	if got := runs.Load(); got < 3 {
		t.Errorf("expected at least 3 runs, got %d", got)
	}
}

func TestDriverSurvivesFailingCycles(t *testing.T) {
	var runs atomic.Int32
	d := Driver{
		Name:     "test",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("cycle failed")
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	d.Start(ctx, &wg)

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	wg.Wait()

	if got := runs.Load(); got < 2 {
		t.Errorf("driver should keep running after failures, got %d runs", got)
	}
}

func TestDriverStopsOnCancel(t *testing.T) {
	d := Driver{
		Name:     "test",
		Interval: time.Hour,
		Run:      func(ctx context.Context) error { return nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	d.Start(ctx, &wg)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop on cancellation")
	}
}
