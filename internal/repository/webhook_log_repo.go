package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"gorm.io/gorm"
)

// WebhookLogRepository tracks one delivery log per triggering event. Status
// writes are guarded on the row still being pending so terminal states are
// never left.
type WebhookLogRepository interface {
	Create(ctx context.Context, log *domain.WebhookLog) error
	GetByID(ctx context.Context, id string) (*domain.WebhookLog, error)
	ListBySite(ctx context.Context, siteID string, limit int) ([]domain.WebhookLog, error)
	Claim(ctx context.Context, id string, now, leaseUntil time.Time) (bool, error)
	MarkSuccess(ctx context.Context, id string, attempts int, responseCode int, at time.Time) error
	MarkRetry(ctx context.Context, id string, attempts int, errMsg string, responseCode *int, at, nextAttemptAt time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, errMsg string, responseCode *int, at time.Time) error
	FindDue(ctx context.Context, limit int, now time.Time, staleAfter time.Duration) ([]domain.WebhookLog, error)
	ClearNextAttemptAt(ctx context.Context, id string) error
	PurgeSuccessOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormWebhookLogRepo struct {
	db *gorm.DB
}

func NewGormWebhookLogRepo(db *gorm.DB) *GormWebhookLogRepo {
	return &GormWebhookLogRepo{db: db}
}

func (r *GormWebhookLogRepo) Create(ctx context.Context, log *domain.WebhookLog) error {
	if log == nil {
		return domain.ErrValidation
	}
	if err := log.Validate(); err != nil {
		return err
	}

	model := webhookLogModelFromDomain(log)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*log = *webhookLogModelToDomain(model)
	return nil
}

func (r *GormWebhookLogRepo) GetByID(ctx context.Context, id string) (*domain.WebhookLog, error) {
	var model WebhookLogModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return webhookLogModelToDomain(&model), nil
}

func (r *GormWebhookLogRepo) ListBySite(ctx context.Context, siteID string, limit int) ([]domain.WebhookLog, error) {
	var models []WebhookLogModel
	err := r.db.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.WebhookLog, 0, len(models))
	for i := range models {
		logs = append(logs, *webhookLogModelToDomain(&models[i]))
	}
	return logs, nil
}

// Claim takes the single-flight lease on a pending row. It reports false
// when the row is terminal or another sender currently holds the lease.
// Lease expiry is judged against the caller's clock, the same one that
// produced leaseUntil and that FindDue filters with, so the lease window is
// immune to app/database clock skew.
func (r *GormWebhookLogRepo) Claim(ctx context.Context, id string, now, leaseUntil time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&WebhookLogModel{}).
		Where("id = ? AND status = ? AND (locked_until IS NULL OR locked_until < ?)",
			id, domain.WebhookStatusPending, now).
		Update("locked_until", leaseUntil)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormWebhookLogRepo) MarkSuccess(ctx context.Context, id string, attempts int, responseCode int, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&WebhookLogModel{}).
		Where("id = ? AND status = ?", id, domain.WebhookStatusPending).
		Updates(map[string]any{
			"status":          domain.WebhookStatusSuccess,
			"attempts":        attempts,
			"last_attempt":    at,
			"response_code":   responseCode,
			"error_message":   nil,
			"next_attempt_at": nil,
			"locked_until":    nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormWebhookLogRepo) MarkRetry(ctx context.Context, id string, attempts int, errMsg string, responseCode *int, at, nextAttemptAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&WebhookLogModel{}).
		Where("id = ? AND status = ?", id, domain.WebhookStatusPending).
		Updates(map[string]any{
			"status":          domain.WebhookStatusPending,
			"attempts":        attempts,
			"last_attempt":    at,
			"response_code":   responseCode,
			"error_message":   errMsg,
			"next_attempt_at": nextAttemptAt,
			"locked_until":    nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormWebhookLogRepo) MarkFailed(ctx context.Context, id string, attempts int, errMsg string, responseCode *int, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&WebhookLogModel{}).
		Where("id = ? AND status = ?", id, domain.WebhookStatusPending).
		Updates(map[string]any{
			"status":          domain.WebhookStatusFailed,
			"attempts":        attempts,
			"last_attempt":    at,
			"response_code":   responseCode,
			"error_message":   errMsg,
			"next_attempt_at": nil,
			"locked_until":    nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// FindDue returns pending rows whose retry schedule is due, plus stale
// pending rows whose enqueue was lost (nil next_attempt_at that has not been
// touched for staleAfter). Leased rows are skipped.
func (r *GormWebhookLogRepo) FindDue(ctx context.Context, limit int, now time.Time, staleAfter time.Duration) ([]domain.WebhookLog, error) {
	staleCutoff := now.Add(-staleAfter)

	var models []WebhookLogModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND attempts < ?", domain.WebhookStatusPending, domain.MaxWebhookAttempts).
		Where("(next_attempt_at <= ? OR (next_attempt_at IS NULL AND updated_at <= ?))", now, staleCutoff).
		Where("(locked_until IS NULL OR locked_until < ?)", now).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.WebhookLog, 0, len(models))
	for i := range models {
		logs = append(logs, *webhookLogModelToDomain(&models[i]))
	}
	return logs, nil
}

func (r *GormWebhookLogRepo) ClearNextAttemptAt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&WebhookLogModel{}).
		Where("id = ?", id).
		Update("next_attempt_at", nil).Error
}

// PurgeSuccessOlderThan deletes delivered logs past the retention cutoff.
// Failed rows are kept indefinitely for investigation.
func (r *GormWebhookLogRepo) PurgeSuccessOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.WebhookStatusSuccess, cutoff).
		Delete(&WebhookLogModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
