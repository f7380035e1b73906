package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/LiteObject/github-traffic-monitor/internal/queue"
	"github.com/LiteObject/github-traffic-monitor/internal/service"
	"github.com/LiteObject/github-traffic-monitor/pkg/errors"
	"github.com/LiteObject/github-traffic-monitor/pkg/logger"
)

type CollectWorker struct {
	service  *service.TrafficService
	queue    *queue.RabbitMQ // optional; nil when no broker is configured
	interval time.Duration
	running  atomic.Bool
}

func NewCollectWorker(service *service.TrafficService, q *queue.RabbitMQ, interval time.Duration) *CollectWorker {
	return &CollectWorker{
		service:  service,
		queue:    q,
		interval: interval,
	}
}

func (w *CollectWorker) Run(ctx context.Context) {
	if err := w.Collect(ctx); err != nil {
		logger.Error("initial collection failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.Collect(ctx); err != nil {
				logger.Error("collection failed: %v", err)
			}

		case <-ctx.Done():
			logger.Info("stopping collect worker")
			return
		}
	}
}

// Collect performs one full collection run unless one is already in
// flight. The guard keeps request traffic strictly sequential; the shared
// per-token rate limit cannot absorb overlapping runs.
func (w *CollectWorker) Collect(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New(
			"COLLECTION_IN_PROGRESS",
			"A collection run is already in progress",
			"Only one collection run may be in flight at a time",
			nil,
			errors.LevelWarning,
		)
	}
	defer w.running.Store(false)

	report := w.service.CollectAll(ctx)
	summary := w.service.Summarize(report)

	logger.Info("totals: views=%d unique_visitors=%d clones=%d", summary.TotalViews, summary.TotalUniqueViews, summary.TotalClones)

	run, err := w.service.SaveReport(ctx, report, summary)
	if err != nil {
		return err
	}

	if w.queue != nil {
		if err := w.queue.PublishRunCompleted(ctx, run); err != nil {
			logger.Warn("failed to publish run-completed event: %v", err)
		}
	}

	return nil
}
