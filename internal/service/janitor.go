package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bifrost-cms/bifrost/internal/repository"
	"go.uber.org/zap"
)

const defaultJanitorInterval = time.Hour

// Janitor enforces retention: each site keeps only its most recent history
// entries, and successful webhook logs are purged after a TTL. Failed logs
// are never purged; they are the only evidence a delivery was lost.
type Janitor struct {
	sites    repository.SiteRepository
	history  repository.HistoryRepository
	logs     repository.WebhookLogRepository
	logger   *zap.Logger
	interval time.Duration
	keepLast int
	logTTL   time.Duration
	now      func() time.Time
}

func NewJanitor(
	sites repository.SiteRepository,
	history repository.HistoryRepository,
	logs repository.WebhookLogRepository,
	keepLast int,
	logTTL time.Duration,
	logger *zap.Logger,
) (*Janitor, error) {
	if sites == nil {
		return nil, fmt.Errorf("site repository is required")
	}
	if history == nil {
		return nil, fmt.Errorf("history repository is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("webhook log repository is required")
	}
	if keepLast <= 0 {
		return nil, fmt.Errorf("history retention count must be positive")
	}
	if logTTL <= 0 {
		return nil, fmt.Errorf("webhook log ttl must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Janitor{
		sites:    sites,
		history:  history,
		logs:     logs,
		logger:   logger,
		interval: defaultJanitorInterval,
		keepLast: keepLast,
		logTTL:   logTTL,
		now:      time.Now,
	}, nil
}

func (j *Janitor) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				j.logger.Error("retention pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes one full retention pass.
func (j *Janitor) RunOnce(ctx context.Context) error {
	siteIDs, err := j.sites.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sites for retention: %w", err)
	}

	for _, siteID := range siteIDs {
		trimmed, err := j.history.TrimToMostRecent(ctx, siteID, j.keepLast)
		if err != nil {
			j.logger.Error("failed to trim history",
				zap.String("siteId", siteID),
				zap.Error(err),
			)
			continue
		}
		if trimmed > 0 {
			j.logger.Info("trimmed history entries",
				zap.String("siteId", siteID),
				zap.Int64("removed", trimmed),
			)
		}
	}

	cutoff := j.now().Add(-j.logTTL)
	purged, err := j.logs.PurgeSuccessOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge webhook logs: %w", err)
	}
	if purged > 0 {
		j.logger.Info("purged delivered webhook logs", zap.Int64("removed", purged))
	}

	return nil
}
