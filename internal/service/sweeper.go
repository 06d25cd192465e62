package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bifrost-cms/bifrost/internal/queue"
	"github.com/bifrost-cms/bifrost/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval = 5 * time.Second
	defaultSweepLimit    = 100

	// sweepStaleAfter guards startup recovery: a pending row with no
	// nextAttemptAt whose last touch is older than this lost its queue
	// message and gets re-enqueued.
	sweepStaleAfter = time.Minute
)

// Sweeper periodically re-enqueues webhook logs whose retry time has come.
// Retry state lives on the log row, not in a timer, so scheduled retries
// survive process restarts; the sweeper is what turns the durable timestamp
// back into a delivery attempt.
type Sweeper struct {
	logs      repository.WebhookLogRepository
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	limit     int
	now       func() time.Time
}

func NewSweeper(
	logs repository.WebhookLogRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*Sweeper, error) {
	if logs == nil {
		return nil, fmt.Errorf("webhook log repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		logs:      logs,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
		now:       time.Now,
	}, nil
}

func (s *Sweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial sweep so retries due before startup do not wait for the
	// first ticker edge.
	if err := s.sweepDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("initial webhook sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweepDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("webhook sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Sweeper) sweepDue(ctx context.Context) error {
	due, err := s.logs.FindDue(ctx, s.limit, s.now(), sweepStaleAfter)
	if err != nil {
		return fmt.Errorf("failed to fetch due webhook logs: %w", err)
	}

	for i := range due {
		log := due[i]
		msg := queue.DeliveryMessage{
			LogID:  log.ID,
			SiteID: log.SiteID,
			Event:  log.Event,
		}

		if err := s.publisher.Publish(ctx, queue.DeliveryQueue, msg); err != nil {
			s.logger.Error("failed to enqueue due webhook delivery",
				zap.String("webhookLogId", log.ID),
				zap.Error(err),
			)
			continue
		}

		// Clearing the timestamp keeps later sweeps from re-enqueueing the
		// same row; a lost message is recovered by the stale branch above.
		if err := s.logs.ClearNextAttemptAt(ctx, log.ID); err != nil {
			s.logger.Error("failed to clear next attempt timestamp after enqueue",
				zap.String("webhookLogId", log.ID),
				zap.Error(err),
			)
			continue
		}
	}

	return nil
}
