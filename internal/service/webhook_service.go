package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"github.com/bifrost-cms/bifrost/internal/repository"
	"go.uber.org/zap"
)

// WebhookService is the admin surface over delivery logs. Terminal logs are
// immutable; the only way to retry a failed delivery is Retrigger, which
// starts a brand new log with a fresh attempt budget.
type WebhookService struct {
	logs    repository.WebhookLogRepository
	trigger *Trigger
	logger  *zap.Logger
}

func NewWebhookService(
	logs repository.WebhookLogRepository,
	trigger *Trigger,
	logger *zap.Logger,
) (*WebhookService, error) {
	if logs == nil {
		return nil, fmt.Errorf("webhook log repository is required")
	}
	if trigger == nil {
		return nil, fmt.Errorf("trigger is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookService{
		logs:    logs,
		trigger: trigger,
		logger:  logger,
	}, nil
}

func (s *WebhookService) Logs(ctx context.Context, siteID string, limit int) ([]domain.WebhookLog, error) {
	return s.logs.ListBySite(ctx, siteID, limit)
}

// Log loads one delivery log scoped to a site. Logs of other sites read as
// not found.
func (s *WebhookService) Log(ctx context.Context, siteID, logID string) (*domain.WebhookLog, error) {
	log, err := s.logs.GetByID(ctx, logID)
	if err != nil {
		return nil, err
	}
	if log.SiteID != siteID {
		return nil, domain.ErrNotFound
	}
	return log, nil
}

// Retrigger replays a failed delivery as a new log carrying the same event
// and data. Only failed logs can be replayed; pending ones are still being
// worked and successful ones already arrived.
func (s *WebhookService) Retrigger(ctx context.Context, siteID, logID string) (string, error) {
	log, err := s.Log(ctx, siteID, logID)
	if err != nil {
		return "", err
	}
	if log.Status != domain.WebhookStatusFailed {
		return "", fmt.Errorf("%w: only failed webhook logs can be retriggered", domain.ErrConflict)
	}

	var payload domain.WebhookPayload
	if err := json.Unmarshal([]byte(log.Payload), &payload); err != nil {
		return "", fmt.Errorf("stored webhook payload is not valid JSON: %w", err)
	}

	newID, err := s.trigger.Fire(ctx, siteID, log.Event, payload.Data)
	if err != nil {
		return "", err
	}
	if newID == "" {
		return "", fmt.Errorf("%w: site has no webhook endpoint configured", domain.ErrConflict)
	}

	s.logger.Info("webhook delivery retriggered",
		zap.String("siteId", siteID),
		zap.String("failedLogId", logID),
		zap.String("newLogId", newID),
	)
	return newID, nil
}

// TestFire sends a marked content.updated event so an operator can verify
// their endpoint and signature handling without editing real content.
func (s *WebhookService) TestFire(ctx context.Context, siteID string) (string, error) {
	logID, err := s.trigger.Fire(ctx, siteID, domain.EventContentUpdated, domain.WebhookData{
		Changes: map[string]any{"_test": true},
	})
	if err != nil {
		return "", err
	}
	if logID == "" {
		return "", fmt.Errorf("%w: site has no webhook endpoint configured", domain.ErrConflict)
	}
	return logID, nil
}
