package repository

import (
	"context"
	"errors"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"gorm.io/gorm"
)

type CollectionRepository interface {
	ListBySiteAndType(ctx context.Context, siteID, collectionType string) ([]domain.CollectionItem, error)
	GetByID(ctx context.Context, id string) (*domain.CollectionItem, error)
	Create(ctx context.Context, item *domain.CollectionItem) error
	UpdateData(ctx context.Context, id string, data domain.JSONValue) error
	Delete(ctx context.Context, id string) error
	Reorder(ctx context.Context, siteID, collectionType string, itemIDs []string) error
}

type GormCollectionRepo struct {
	db *gorm.DB
}

func NewGormCollectionRepo(db *gorm.DB) *GormCollectionRepo {
	return &GormCollectionRepo{db: db}
}

func (r *GormCollectionRepo) ListBySiteAndType(ctx context.Context, siteID, collectionType string) ([]domain.CollectionItem, error) {
	var models []CollectionItemModel
	err := r.db.WithContext(ctx).
		Where("site_id = ? AND collection_type = ?", siteID, collectionType).
		Order("position ASC, created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	items := make([]domain.CollectionItem, 0, len(models))
	for i := range models {
		items = append(items, *itemModelToDomain(&models[i]))
	}
	return items, nil
}

func (r *GormCollectionRepo) GetByID(ctx context.Context, id string) (*domain.CollectionItem, error) {
	var model CollectionItemModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return itemModelToDomain(&model), nil
}

func (r *GormCollectionRepo) Create(ctx context.Context, item *domain.CollectionItem) error {
	if item == nil {
		return domain.ErrValidation
	}
	if err := item.Validate(); err != nil {
		return err
	}

	model := &CollectionItemModel{
		ID:             item.ID,
		SiteID:         item.SiteID,
		CollectionType: item.CollectionType,
		Data:           string(item.Data.Raw),
		Position:       item.Position,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	*item = *itemModelToDomain(model)
	return nil
}

// UpdateData replaces the item's data blob. Used by ordinary edits and by
// restores; a restore of a deleted item re-creates the row instead.
func (r *GormCollectionRepo) UpdateData(ctx context.Context, id string, data domain.JSONValue) error {
	result := r.db.WithContext(ctx).
		Model(&CollectionItemModel{}).
		Where("id = ?", id).
		Update("data", string(data.Raw))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormCollectionRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&CollectionItemModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Reorder rewrites positions to match the given id order. IDs not listed
// keep their position and sort after the listed ones by creation time.
func (r *GormCollectionRepo) Reorder(ctx context.Context, siteID, collectionType string, itemIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for position, id := range itemIDs {
			err := tx.Model(&CollectionItemModel{}).
				Where("id = ? AND site_id = ? AND collection_type = ?", id, siteID, collectionType).
				Update("position", position).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
