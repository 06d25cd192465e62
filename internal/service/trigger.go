package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"github.com/bifrost-cms/bifrost/internal/queue"
	"github.com/bifrost-cms/bifrost/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Trigger turns a content mutation into a webhook log row plus a queue
// message. Sites without a webhook URL produce neither: no row, no attempt,
// no error. The payload is serialized exactly once here; every delivery
// attempt signs and posts those stored bytes.
type Trigger struct {
	sites     repository.SiteRepository
	logs      repository.WebhookLogRepository
	publisher queue.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewTrigger(
	sites repository.SiteRepository,
	logs repository.WebhookLogRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*Trigger, error) {
	if sites == nil {
		return nil, fmt.Errorf("site repository is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("webhook log repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Trigger{
		sites:     sites,
		logs:      logs,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Fire creates the log row for one event and enqueues its first delivery.
// The returned log ID is empty when the site has no webhook configured.
func (t *Trigger) Fire(ctx context.Context, siteID string, event domain.WebhookEvent, data domain.WebhookData) (string, error) {
	site, err := t.sites.GetByID(ctx, siteID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			t.logger.Debug("webhook trigger skipped, site not found", zap.String("siteId", siteID))
			return "", nil
		}
		return "", fmt.Errorf("failed to load site for webhook trigger: %w", err)
	}
	if !site.HasWebhook() {
		t.logger.Debug("webhook trigger skipped, no endpoint configured",
			zap.String("siteId", siteID),
			zap.String("event", event.String()),
		)
		return "", nil
	}

	createdAt := t.now().UTC()
	payload := domain.NewWebhookPayload(siteID, event, data, createdAt)
	body, err := payload.Encode()
	if err != nil {
		return "", err
	}

	log := &domain.WebhookLog{
		ID:            uuid.NewString(),
		SiteID:        siteID,
		Event:         event,
		Payload:       string(body),
		Status:        domain.WebhookStatusPending,
		NextAttemptAt: &createdAt,
	}
	if err := t.logs.Create(ctx, log); err != nil {
		return "", fmt.Errorf("failed to create webhook log: %w", err)
	}

	msg := queue.DeliveryMessage{
		LogID:  log.ID,
		SiteID: siteID,
		Event:  event,
	}
	if err := t.publisher.Publish(ctx, queue.DeliveryQueue, msg); err != nil {
		// The row carries nextAttemptAt, so the sweeper picks it up even
		// when the broker is down.
		t.logger.Warn("failed to enqueue webhook delivery, sweep will recover it",
			zap.String("webhookLogId", log.ID),
			zap.Error(err),
		)
		return log.ID, nil
	}

	if err := t.logs.ClearNextAttemptAt(ctx, log.ID); err != nil {
		t.logger.Warn("failed to clear next attempt timestamp after enqueue",
			zap.String("webhookLogId", log.ID),
			zap.Error(err),
		)
	}

	return log.ID, nil
}
