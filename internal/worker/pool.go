package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// spawnInstances starts one goroutine per consumer instance
func (w *Worker) spawnInstances(ctx context.Context, g *errgroup.Group) {
	w.logger.Info("Spawning consumer instances",
		slog.Int("instances", len(w.instances)),
		slog.String("worker_id", w.workerID),
	)

	for _, inst := range w.instances {
		inst := inst
		g.Go(func() error {
			return w.runInstance(ctx, inst)
		})
	}
}

// runInstance connects, consumes until the channel drops, and reconnects.
// It returns nil on cancellation and an error only if the connector gives up.
func (w *Worker) runInstance(ctx context.Context, inst *instance) error {
	logger := w.logger.With(
		slog.String("consumer_tag", inst.tag),
		slog.Int("instance", inst.num),
	)
	logger.Info("Consumer instance started")

	defer func() {
		if err := inst.broker.Close(); err != nil {
			logger.Error("Failed to close broker connection", slog.Any("error", err))
		}
		logger.Info("Consumer instance stopped")
	}()

	for {
		if err := inst.broker.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error("Consumer instance could not reach the broker", slog.Any("error", err))
			return err
		}

		deliveries, err := inst.broker.Consume(inst.tag)
		if err != nil {
			logger.Error("Failed to start consuming, reconnecting",
				slog.Duration("retry_after", w.retryInterval),
				slog.Any("error", err),
			)
			_ = inst.broker.Close()
			if !w.pause(ctx) {
				return nil
			}
			continue
		}

		err = inst.consumer.Run(ctx, deliveries)
		if ctx.Err() != nil {
			return nil
		}

		if errors.Is(err, ErrDeliveriesClosed) {
			logger.Warn("Lost broker channel, reconnecting")
		}
		_ = inst.broker.Close()
	}
}

// pause waits one retry interval; it returns false if ctx ends first
func (w *Worker) pause(ctx context.Context) bool {
	timer := time.NewTimer(w.retryInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
