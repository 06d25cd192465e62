package repository

import (
	"context"
	"errors"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"gorm.io/gorm"
)

type SiteRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Site, error)
	ListIDs(ctx context.Context) ([]string, error)
}

type GormSiteRepo struct {
	db *gorm.DB
}

func NewGormSiteRepo(db *gorm.DB) *GormSiteRepo {
	return &GormSiteRepo{db: db}
}

func (r *GormSiteRepo) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	var model SiteModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return siteModelToDomain(&model), nil
}

func (r *GormSiteRepo) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&SiteModel{}).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
