package repository

import (
	"context"
	"errors"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContentRepository interface {
	ListBySite(ctx context.Context, siteID string) ([]domain.ContentField, error)
	GetByFieldKey(ctx context.Context, siteID, fieldKey string) (*domain.ContentField, error)
	Upsert(ctx context.Context, field *domain.ContentField) error
	Delete(ctx context.Context, siteID, fieldKey string) error
}

type GormContentRepo struct {
	db *gorm.DB
}

func NewGormContentRepo(db *gorm.DB) *GormContentRepo {
	return &GormContentRepo{db: db}
}

func (r *GormContentRepo) ListBySite(ctx context.Context, siteID string) ([]domain.ContentField, error) {
	var models []ContentModel
	err := r.db.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("field_key ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	fields := make([]domain.ContentField, 0, len(models))
	for i := range models {
		fields = append(fields, *contentModelToDomain(&models[i]))
	}
	return fields, nil
}

func (r *GormContentRepo) GetByFieldKey(ctx context.Context, siteID, fieldKey string) (*domain.ContentField, error) {
	var model ContentModel
	err := r.db.WithContext(ctx).
		Where("site_id = ? AND field_key = ?", siteID, fieldKey).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return contentModelToDomain(&model), nil
}

// Upsert inserts the field or replaces its value, bumping the version
// counter on every conflict.
func (r *GormContentRepo) Upsert(ctx context.Context, field *domain.ContentField) error {
	if field == nil {
		return domain.ErrValidation
	}
	if err := field.Validate(); err != nil {
		return err
	}

	model := &ContentModel{
		SiteID:   field.SiteID,
		FieldKey: field.FieldKey,
		Value:    string(field.Value.Raw),
		Version:  1,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "site_id"}, {Name: "field_key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":      model.Value,
				"version":    gorm.Expr("contents.version + 1"),
				"updated_at": gorm.Expr("NOW()"),
			}),
		}, clause.Returning{}).
		Create(model).Error
	if err != nil {
		return err
	}

	*field = *contentModelToDomain(model)
	return nil
}

func (r *GormContentRepo) Delete(ctx context.Context, siteID, fieldKey string) error {
	result := r.db.WithContext(ctx).
		Where("site_id = ? AND field_key = ?", siteID, fieldKey).
		Delete(&ContentModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
