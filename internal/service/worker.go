package service

import (
	"context"
	"fmt"

	"github.com/bifrost-cms/bifrost/internal/observability"
	"github.com/bifrost-cms/bifrost/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// Worker consumes the delivery queue and hands each message to the
// dispatcher. Delivery failures end up on the log row; only infrastructure
// errors bubble up to the consumer for redelivery.
type Worker struct {
	consumer    queue.Consumer
	dispatcher  *Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewWorker(
	consumer queue.Consumer,
	dispatcher *Dispatcher,
	concurrency int,
	logger *zap.Logger,
) (*Worker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		consumer:    consumer,
		dispatcher:  dispatcher,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (w *Worker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start consumes the delivery queue until context cancellation.
func (w *Worker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("delivery worker started", zap.Int("workerId", workerID))

			err := w.consumer.Consume(groupCtx, queue.DeliveryQueue, w.processMessage)
			if err != nil {
				w.logger.Error("delivery worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("delivery worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (w *Worker) processMessage(ctx context.Context, msg queue.DeliveryMessage) error {
	if w.metrics != nil {
		w.metrics.IncWorkerInFlight()
		defer w.metrics.DecWorkerInFlight()
	}

	if err := w.dispatcher.Send(ctx, msg.LogID); err != nil {
		return fmt.Errorf("delivery attempt for log %s failed: %w", msg.LogID, err)
	}
	return nil
}
