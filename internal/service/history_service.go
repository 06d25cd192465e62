package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"github.com/bifrost-cms/bifrost/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HistoryService is the read and restore surface over the mutation log.
// Restore is itself a recorded mutation: it always appends a fresh entry, so
// the log stays append-only and a restore can be restored.
type HistoryService struct {
	history repository.HistoryRepository
	content repository.ContentRepository
	items   repository.CollectionRepository
	logger  *zap.Logger
	now     func() time.Time
}

func NewHistoryService(
	history repository.HistoryRepository,
	content repository.ContentRepository,
	items repository.CollectionRepository,
	logger *zap.Logger,
) (*HistoryService, error) {
	if history == nil {
		return nil, fmt.Errorf("history repository is required")
	}
	if content == nil {
		return nil, fmt.Errorf("content repository is required")
	}
	if items == nil {
		return nil, fmt.Errorf("collection repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HistoryService{
		history: history,
		content: content,
		items:   items,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (s *HistoryService) SiteHistory(ctx context.Context, siteID string, params repository.HistoryListParams) ([]domain.HistoryEntry, int64, error) {
	return s.history.ListBySite(ctx, siteID, params)
}

func (s *HistoryService) FieldHistory(ctx context.Context, siteID, fieldKey string, limit int) ([]domain.HistoryEntry, error) {
	return s.history.ListByField(ctx, siteID, fieldKey, limit)
}

func (s *HistoryService) ItemHistory(ctx context.Context, itemID string, limit int) ([]domain.HistoryEntry, error) {
	return s.history.ListByItem(ctx, itemID, limit)
}

// Entry loads one history entry scoped to a site. Entries of other sites
// read as not found, never as forbidden, so tenants cannot probe each
// other's IDs.
func (s *HistoryService) Entry(ctx context.Context, siteID, entryID string) (*domain.HistoryEntry, error) {
	entry, err := s.history.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.SiteID != siteID {
		return nil, domain.ErrNotFound
	}
	return entry, nil
}

// Restore applies a history entry, dispatching on whether it targets a
// content field or a collection item.
func (s *HistoryService) Restore(ctx context.Context, siteID, entryID string, restoredBy *string) (domain.JSONValue, error) {
	entry, err := s.history.GetByID(ctx, entryID)
	if err != nil {
		return domain.JSONValue{}, err
	}
	if entry.IsFieldEntry() {
		return s.restoreFieldEntry(ctx, siteID, entry, restoredBy)
	}
	return s.restoreItemEntry(ctx, siteID, entry, restoredBy)
}

// RestoreField writes a field back to the state a history entry captured and
// returns the restored value. The write goes through even when the field was
// deleted after the entry was recorded; restore re-creates it. An entry owned
// by another site is a forbidden restore, not a missing one.
func (s *HistoryService) RestoreField(ctx context.Context, siteID, entryID string, restoredBy *string) (domain.JSONValue, error) {
	entry, err := s.history.GetByID(ctx, entryID)
	if err != nil {
		return domain.JSONValue{}, err
	}
	if !entry.IsFieldEntry() {
		return domain.JSONValue{}, fmt.Errorf("%w: history entry %s does not target a content field", domain.ErrValidation, entryID)
	}
	return s.restoreFieldEntry(ctx, siteID, entry, restoredBy)
}

func (s *HistoryService) restoreFieldEntry(ctx context.Context, siteID string, entry *domain.HistoryEntry, restoredBy *string) (domain.JSONValue, error) {
	if entry.SiteID != siteID {
		return domain.JSONValue{}, fmt.Errorf("%w: history entry %s belongs to another site", domain.ErrForbidden, entry.ID)
	}

	var currentValue domain.JSONValue
	current, err := s.content.GetByFieldKey(ctx, siteID, *entry.FieldKey)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.JSONValue{}, err
	}
	if current != nil {
		currentValue = current.Value
	}

	value := entry.RestoreValue()
	field := &domain.ContentField{
		SiteID:   siteID,
		FieldKey: *entry.FieldKey,
		Value:    value,
	}
	if err := s.content.Upsert(ctx, field); err != nil {
		return domain.JSONValue{}, fmt.Errorf("failed to restore content field: %w", err)
	}

	s.appendRestoreEntry(ctx, &domain.HistoryEntry{
		ID:        uuid.NewString(),
		SiteID:    siteID,
		FieldKey:  entry.FieldKey,
		OldValue:  currentValue,
		NewValue:  value,
		ChangedAt: s.now().UTC(),
		ChangedBy: restoredBy,
	})

	return value, nil
}

// RestoreItem writes a collection item back to the state a history entry
// captured. A deleted item is re-created under its original ID.
func (s *HistoryService) RestoreItem(ctx context.Context, siteID, entryID string, restoredBy *string) (domain.JSONValue, error) {
	entry, err := s.history.GetByID(ctx, entryID)
	if err != nil {
		return domain.JSONValue{}, err
	}
	if entry.IsFieldEntry() {
		return domain.JSONValue{}, fmt.Errorf("%w: history entry %s does not target a collection item", domain.ErrValidation, entryID)
	}
	return s.restoreItemEntry(ctx, siteID, entry, restoredBy)
}

// Item entries keep the not-found read for cross-site IDs: item identity is
// global, so a foreign entry id must not confirm its existence.
func (s *HistoryService) restoreItemEntry(ctx context.Context, siteID string, entry *domain.HistoryEntry, restoredBy *string) (domain.JSONValue, error) {
	if entry.SiteID != siteID {
		return domain.JSONValue{}, domain.ErrNotFound
	}

	value := entry.RestoreValue()

	var currentValue domain.JSONValue
	item, err := s.items.GetByID(ctx, *entry.ItemID)
	switch {
	case err == nil:
		currentValue = item.Data
		if err := s.items.UpdateData(ctx, item.ID, value); err != nil {
			return domain.JSONValue{}, fmt.Errorf("failed to restore collection item: %w", err)
		}
	case errors.Is(err, domain.ErrNotFound):
		if entry.CollectionType == nil {
			return domain.JSONValue{}, fmt.Errorf("%w: collection item %s no longer exists", domain.ErrNotFound, *entry.ItemID)
		}
		recreated := &domain.CollectionItem{
			ID:             *entry.ItemID,
			SiteID:         siteID,
			CollectionType: *entry.CollectionType,
			Data:           value,
		}
		if err := s.items.Create(ctx, recreated); err != nil {
			return domain.JSONValue{}, fmt.Errorf("failed to re-create collection item: %w", err)
		}
	default:
		return domain.JSONValue{}, err
	}

	s.appendRestoreEntry(ctx, &domain.HistoryEntry{
		ID:             uuid.NewString(),
		SiteID:         siteID,
		ItemID:         entry.ItemID,
		CollectionType: entry.CollectionType,
		OldValue:       currentValue,
		NewValue:       value,
		ChangedAt:      s.now().UTC(),
		ChangedBy:      restoredBy,
	})

	return value, nil
}

// appendRestoreEntry records the restore itself. Unlike the recorder it
// appends even when the restored value equals the current one: the audit
// trail shows that a restore happened.
func (s *HistoryService) appendRestoreEntry(ctx context.Context, entry *domain.HistoryEntry) {
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Error("failed to record restore in history",
			zap.String("siteId", entry.SiteID),
			zap.Error(err),
		)
	}
}
