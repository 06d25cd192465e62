package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"github.com/bifrost-cms/bifrost/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CollectionService manages the structured item lists of a site. Item writes
// record history and fire collection.* webhooks as detached side effects,
// mirroring what ContentService does for fields.
type CollectionService struct {
	sites    repository.SiteRepository
	items    repository.CollectionRepository
	recorder *Recorder
	trigger  *Trigger
	tasks    *Tasks
	logger   *zap.Logger
}

func NewCollectionService(
	sites repository.SiteRepository,
	items repository.CollectionRepository,
	recorder *Recorder,
	trigger *Trigger,
	tasks *Tasks,
	logger *zap.Logger,
) (*CollectionService, error) {
	if sites == nil {
		return nil, fmt.Errorf("site repository is required")
	}
	if items == nil {
		return nil, fmt.Errorf("collection repository is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if trigger == nil {
		return nil, fmt.Errorf("trigger is required")
	}
	if tasks == nil {
		return nil, fmt.Errorf("tasks runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CollectionService{
		sites:    sites,
		items:    items,
		recorder: recorder,
		trigger:  trigger,
		tasks:    tasks,
		logger:   logger,
	}, nil
}

func (s *CollectionService) ListItems(ctx context.Context, siteID, collectionType string) ([]domain.CollectionItem, error) {
	if _, err := s.sites.GetByID(ctx, siteID); err != nil {
		return nil, err
	}
	return s.items.ListBySiteAndType(ctx, siteID, collectionType)
}

// Item loads one collection item scoped to a site. Items of other sites read
// as not found.
func (s *CollectionService) Item(ctx context.Context, siteID, itemID string) (*domain.CollectionItem, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.SiteID != siteID {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// CreateItem appends a new item to the end of its collection.
func (s *CollectionService) CreateItem(ctx context.Context, siteID, collectionType string, data json.RawMessage, changedBy *string) (*domain.CollectionItem, error) {
	if _, err := s.sites.GetByID(ctx, siteID); err != nil {
		return nil, err
	}

	existing, err := s.items.ListBySiteAndType(ctx, siteID, collectionType)
	if err != nil {
		return nil, err
	}

	item := &domain.CollectionItem{
		ID:             uuid.NewString(),
		SiteID:         siteID,
		CollectionType: collectionType,
		Data:           domain.JSONValue{Raw: data},
		Position:       len(existing),
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create collection item: %w", err)
	}

	s.tasks.Go("record-item-history", func(ctx context.Context) error {
		s.recorder.RecordItemChange(ctx, siteID, collectionType, item.ID, domain.JSONValue{}, item.Data, changedBy)
		return nil
	})
	s.fireEvent(siteID, domain.EventCollectionCreated, domain.WebhookData{
		CollectionType: collectionType,
		ItemID:         item.ID,
		Changes:        decodeChanges(data),
	})

	return item, nil
}

// UpdateItem replaces an item's data.
func (s *CollectionService) UpdateItem(ctx context.Context, siteID, itemID string, data json.RawMessage, changedBy *string) (*domain.CollectionItem, error) {
	item, err := s.Item(ctx, siteID, itemID)
	if err != nil {
		return nil, err
	}

	newData := domain.JSONValue{Raw: data}
	if newData.IsNull() {
		return nil, fmt.Errorf("%w: data is required", domain.ErrValidation)
	}
	if err := s.items.UpdateData(ctx, itemID, newData); err != nil {
		return nil, fmt.Errorf("failed to update collection item: %w", err)
	}

	oldData := item.Data
	s.tasks.Go("record-item-history", func(ctx context.Context) error {
		s.recorder.RecordItemChange(ctx, siteID, item.CollectionType, itemID, oldData, newData, changedBy)
		return nil
	})
	s.fireEvent(siteID, domain.EventCollectionUpdated, domain.WebhookData{
		CollectionType: item.CollectionType,
		ItemID:         itemID,
		Changes:        decodeChanges(data),
	})

	item.Data = newData
	return item, nil
}

// DeleteItem removes an item and fires collection.deleted. The item's
// history entries survive it, so a later restore can re-create it.
func (s *CollectionService) DeleteItem(ctx context.Context, siteID, itemID string) error {
	item, err := s.Item(ctx, siteID, itemID)
	if err != nil {
		return err
	}
	if err := s.items.Delete(ctx, itemID); err != nil {
		return err
	}

	s.fireEvent(siteID, domain.EventCollectionDeleted, domain.WebhookData{
		CollectionType: item.CollectionType,
		ItemID:         itemID,
	})

	return nil
}

// ReorderItems rewrites positions to match the given ID order.
func (s *CollectionService) ReorderItems(ctx context.Context, siteID, collectionType string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return fmt.Errorf("%w: item ids are required", domain.ErrValidation)
	}
	if _, err := s.sites.GetByID(ctx, siteID); err != nil {
		return err
	}

	if err := s.items.Reorder(ctx, siteID, collectionType, itemIDs); err != nil {
		return err
	}

	s.fireEvent(siteID, domain.EventCollectionReordered, domain.WebhookData{
		CollectionType: collectionType,
	})

	return nil
}

func (s *CollectionService) fireEvent(siteID string, event domain.WebhookEvent, data domain.WebhookData) {
	s.tasks.Go("fire-"+event.String(), func(ctx context.Context) error {
		_, err := s.trigger.Fire(ctx, siteID, event, data)
		return err
	})
}

func decodeChanges(data json.RawMessage) map[string]any {
	var changes map[string]any
	if err := json.Unmarshal(data, &changes); err != nil {
		return nil
	}
	return changes
}
