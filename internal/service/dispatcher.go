package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"github.com/bifrost-cms/bifrost/internal/observability"
	"github.com/bifrost-cms/bifrost/internal/ratelimit"
	"github.com/bifrost-cms/bifrost/internal/repository"
	"github.com/bifrost-cms/bifrost/internal/webhook"
	"go.uber.org/zap"
)

// deliveryLease bounds how long one worker owns a log row. It must exceed
// the per-attempt send timeout so a slow endpoint cannot outlive the lease.
const deliveryLease = 30 * time.Second

// retryDelays is the fixed backoff schedule: the wait after the first,
// second, ... failed attempt. Attempts beyond the table reuse the last entry.
var retryDelays = []time.Duration{
	time.Minute,
	5 * time.Minute,
	30 * time.Minute,
}

// RetryDelay returns the wait before the attempt following attemptNumber.
func RetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}
	if attemptNumber > len(retryDelays) {
		attemptNumber = len(retryDelays)
	}
	return retryDelays[attemptNumber-1]
}

// Dispatcher executes a single delivery attempt for a webhook log: claim the
// row, look the endpoint up fresh, sign the stored payload bytes and POST
// them, then advance the log to success, pending-with-backoff, or failed.
type Dispatcher struct {
	logs    repository.WebhookLogRepository
	sites   repository.SiteRepository
	sender  webhook.Sender
	signer  *webhook.Signer
	limiter ratelimit.RateLimiter
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewDispatcher(
	logs repository.WebhookLogRepository,
	sites repository.SiteRepository,
	sender webhook.Sender,
	signer *webhook.Signer,
	limiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if logs == nil {
		return nil, fmt.Errorf("webhook log repository is required")
	}
	if sites == nil {
		return nil, fmt.Errorf("site repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		logs:    logs,
		sites:   sites,
		sender:  sender,
		signer:  signer,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Send performs one delivery attempt for the given log. A non-nil error
// means infrastructure trouble and the message should be redelivered;
// delivery failures are absorbed into the log row instead.
func (d *Dispatcher) Send(ctx context.Context, logID string) error {
	log, err := d.logs.GetByID(ctx, logID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			d.logger.Warn("webhook log not found, skipping delivery", zap.String("webhookLogId", logID))
			return nil
		}
		return fmt.Errorf("failed to load webhook log: %w", err)
	}

	if log.Status.IsTerminal() {
		d.logger.Debug("webhook log already terminal, skipping",
			zap.String("webhookLogId", logID),
			zap.String("status", log.Status.String()),
		)
		return nil
	}
	if log.Exhausted() {
		d.logger.Warn("pending webhook log has no attempt budget left, skipping",
			zap.String("webhookLogId", logID),
			zap.Int("attempts", log.Attempts),
		)
		return nil
	}

	claimNow := d.now()
	claimed, err := d.logs.Claim(ctx, logID, claimNow, claimNow.Add(deliveryLease))
	if err != nil {
		return fmt.Errorf("failed to claim webhook log: %w", err)
	}
	if !claimed {
		d.logger.Debug("webhook log claimed elsewhere, skipping", zap.String("webhookLogId", logID))
		return nil
	}

	// The endpoint is resolved per attempt, never snapshotted: removing the
	// URL between retries retires the log instead of delivering stale config.
	site, err := d.sites.GetByID(ctx, log.SiteID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to load site for delivery: %w", err)
	}
	if err != nil || !site.HasWebhook() {
		return d.finishEndpointGone(ctx, log)
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, log.SiteID); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	body := []byte(log.Payload)
	var payload domain.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("stored webhook payload is not valid JSON: %w", err)
	}

	event := log.Event.String()
	attemptNumber := log.Attempts + 1
	attemptedAt := d.now().UTC()

	resp, sendErr := d.sender.Send(ctx, webhook.Request{
		URL:       *site.WebhookURL,
		Body:      body,
		Event:     event,
		Timestamp: payload.Timestamp,
		Signature: d.signer.Sign(body),
	})
	if d.metrics != nil {
		d.metrics.ObserveWebhookSendDuration(event, d.now().Sub(attemptedAt))
	}

	if sendErr == nil {
		return d.finishSuccess(ctx, log, attemptNumber, resp, attemptedAt)
	}
	return d.finishFailure(ctx, log, attemptNumber, sendErr, attemptedAt)
}

// finishEndpointGone retires a pending log whose site or endpoint vanished
// mid-cycle. Leaving the row pending would make the sweep re-enqueue it
// forever; a terminal failed row stays inspectable and is swept no more.
func (d *Dispatcher) finishEndpointGone(ctx context.Context, log *domain.WebhookLog) error {
	err := d.logs.MarkFailed(ctx, log.ID, log.Attempts, "webhook endpoint removed", nil, d.now().UTC())
	if errors.Is(err, domain.ErrConflict) {
		d.logger.Debug("webhook log no longer pending, dropping endpoint-gone result", zap.String("webhookLogId", log.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to retire webhook log without endpoint: %w", err)
	}

	if d.metrics != nil {
		d.metrics.IncWebhookFailed(log.Event.String(), "endpoint_removed")
	}
	d.logger.Info("webhook endpoint no longer configured, delivery retired",
		zap.String("webhookLogId", log.ID),
		zap.String("siteId", log.SiteID),
		zap.Int("attempts", log.Attempts),
	)
	return nil
}

func (d *Dispatcher) finishSuccess(ctx context.Context, log *domain.WebhookLog, attemptNumber int, resp *webhook.Response, at time.Time) error {
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}

	err := d.logs.MarkSuccess(ctx, log.ID, attemptNumber, statusCode, at)
	if errors.Is(err, domain.ErrConflict) {
		d.logger.Debug("webhook log no longer pending, dropping success result", zap.String("webhookLogId", log.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mark webhook log success: %w", err)
	}

	if d.metrics != nil {
		d.metrics.IncWebhookSent(log.Event.String())
	}
	d.logger.Info("webhook delivered",
		zap.String("webhookLogId", log.ID),
		zap.String("siteId", log.SiteID),
		zap.String("event", log.Event.String()),
		zap.Int("attempt", attemptNumber),
		zap.Int("statusCode", statusCode),
	)
	return nil
}

func (d *Dispatcher) finishFailure(ctx context.Context, log *domain.WebhookLog, attemptNumber int, sendErr error, at time.Time) error {
	var responseCode *int
	var deliveryErr *webhook.DeliveryError
	if errors.As(sendErr, &deliveryErr) && deliveryErr.StatusCode > 0 {
		code := deliveryErr.StatusCode
		responseCode = &code
	}
	errMsg := sendErr.Error()
	event := log.Event.String()

	if attemptNumber >= domain.MaxWebhookAttempts {
		err := d.logs.MarkFailed(ctx, log.ID, attemptNumber, errMsg, responseCode, at)
		if errors.Is(err, domain.ErrConflict) {
			d.logger.Debug("webhook log no longer pending, dropping failure result", zap.String("webhookLogId", log.ID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to mark webhook log failed: %w", err)
		}

		if d.metrics != nil {
			reason := "permanent_error"
			if webhook.IsTransient(sendErr) {
				reason = "retry_exhausted"
			}
			d.metrics.IncWebhookFailed(event, reason)
		}
		d.logger.Warn("webhook delivery exhausted",
			zap.String("webhookLogId", log.ID),
			zap.String("siteId", log.SiteID),
			zap.String("event", event),
			zap.Int("attempts", attemptNumber),
			zap.String("error", errMsg),
		)
		return nil
	}

	nextAttemptAt := at.Add(RetryDelay(attemptNumber))
	err := d.logs.MarkRetry(ctx, log.ID, attemptNumber, errMsg, responseCode, at, nextAttemptAt)
	if errors.Is(err, domain.ErrConflict) {
		d.logger.Debug("webhook log no longer pending, dropping retry result", zap.String("webhookLogId", log.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to schedule webhook retry: %w", err)
	}

	if d.metrics != nil {
		d.metrics.IncRetryScheduled(event)
	}
	d.logger.Info("webhook delivery failed, retry scheduled",
		zap.String("webhookLogId", log.ID),
		zap.String("siteId", log.SiteID),
		zap.String("event", event),
		zap.Int("attempt", attemptNumber),
		zap.Time("nextAttemptAt", nextAttemptAt),
		zap.String("error", errMsg),
	)
	return nil
}
