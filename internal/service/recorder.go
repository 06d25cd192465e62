package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"github.com/bifrost-cms/bifrost/internal/observability"
	"github.com/bifrost-cms/bifrost/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder appends history entries for field and item mutations. It is a
// best-effort side channel: a write that changed nothing records nothing,
// and a failed append is logged but never surfaced to the caller, so history
// problems cannot fail the mutation that triggered them.
type Recorder struct {
	history repository.HistoryRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewRecorder(history repository.HistoryRepository, logger *zap.Logger) (*Recorder, error) {
	if history == nil {
		return nil, fmt.Errorf("history repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Recorder{
		history: history,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (r *Recorder) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// RecordFieldChange appends an entry for a content field mutation. Equal old
// and new values are a no-op.
func (r *Recorder) RecordFieldChange(ctx context.Context, siteID, fieldKey string, oldValue, newValue domain.JSONValue, changedBy *string) {
	if oldValue.Equal(newValue) {
		return
	}

	entry := &domain.HistoryEntry{
		ID:        uuid.NewString(),
		SiteID:    siteID,
		FieldKey:  &fieldKey,
		OldValue:  oldValue,
		NewValue:  newValue,
		ChangedAt: r.now().UTC(),
		ChangedBy: changedBy,
	}
	r.append(ctx, entry, "field")
}

// RecordItemChange appends an entry for a collection item mutation. Equal old
// and new data is a no-op.
func (r *Recorder) RecordItemChange(ctx context.Context, siteID, collectionType, itemID string, oldValue, newValue domain.JSONValue, changedBy *string) {
	if oldValue.Equal(newValue) {
		return
	}

	entry := &domain.HistoryEntry{
		ID:             uuid.NewString(),
		SiteID:         siteID,
		ItemID:         &itemID,
		CollectionType: &collectionType,
		OldValue:       oldValue,
		NewValue:       newValue,
		ChangedAt:      r.now().UTC(),
		ChangedBy:      changedBy,
	}
	r.append(ctx, entry, "item")
}

func (r *Recorder) append(ctx context.Context, entry *domain.HistoryEntry, target string) {
	if err := r.history.Create(ctx, entry); err != nil {
		r.logger.Error("failed to record history entry",
			zap.String("siteId", entry.SiteID),
			zap.String("target", target),
			zap.Error(err),
		)
		return
	}

	if r.metrics != nil {
		r.metrics.IncHistoryRecorded(target)
	}
}
