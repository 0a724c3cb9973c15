// Package pipeline wires the fetch, detection, enrichment and persistence
// stages into periodically driven cycles.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Driver runs one pipeline cycle on a fixed interval. A failed cycle is
// logged and the driver keeps going; only context cancellation stops it.
type Driver struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Start launches the driver loop in its own goroutine. The first cycle runs
// immediately, subsequent ones on the interval.
func (d Driver) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("Pipeline: driver started", "driver", d.Name, "interval", d.Interval)

		d.runOnce(ctx)

		ticker := time.NewTicker(d.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("Pipeline: driver stopped", "driver", d.Name)
				return
			case <-ticker.C:
				d.runOnce(ctx)
			}
		}
	}()
}

func (d Driver) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := d.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Pipeline: cycle failed", "driver", d.Name, "duration", time.Since(start), "error", err)
		return
	}
	slog.Info("Pipeline: cycle complete", "driver", d.Name, "duration", time.Since(start))
}
