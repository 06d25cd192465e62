package repository

import (
	"context"
	"errors"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"gorm.io/gorm"
)

type HistoryListParams struct {
	Page     int
	PageSize int
}

// HistoryRepository is the append-only mutation log. Entries are created and
// read; the only delete path is retention trimming.
type HistoryRepository interface {
	Create(ctx context.Context, entry *domain.HistoryEntry) error
	GetByID(ctx context.Context, id string) (*domain.HistoryEntry, error)
	ListBySite(ctx context.Context, siteID string, params HistoryListParams) ([]domain.HistoryEntry, int64, error)
	ListByField(ctx context.Context, siteID, fieldKey string, limit int) ([]domain.HistoryEntry, error)
	ListByItem(ctx context.Context, itemID string, limit int) ([]domain.HistoryEntry, error)
	TrimToMostRecent(ctx context.Context, siteID string, keep int) (int64, error)
}

type GormHistoryRepo struct {
	db *gorm.DB
}

func NewGormHistoryRepo(db *gorm.DB) *GormHistoryRepo {
	return &GormHistoryRepo{db: db}
}

func (r *GormHistoryRepo) Create(ctx context.Context, entry *domain.HistoryEntry) error {
	if entry == nil {
		return domain.ErrValidation
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	model := historyModelFromDomain(entry)
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *GormHistoryRepo) GetByID(ctx context.Context, id string) (*domain.HistoryEntry, error) {
	var row historyRow
	err := r.actorJoined(ctx).
		Where("content_history.id = ?", id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return historyRowToDomain(&row), nil
}

func (r *GormHistoryRepo) ListBySite(ctx context.Context, siteID string, params HistoryListParams) ([]domain.HistoryEntry, int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&HistoryModel{}).
		Where("site_id = ?", siteID).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var rows []historyRow
	err = r.actorJoined(ctx).
		Where("content_history.site_id = ?", siteID).
		Order("content_history.changed_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}

	return rowsToDomain(rows), total, nil
}

func (r *GormHistoryRepo) ListByField(ctx context.Context, siteID, fieldKey string, limit int) ([]domain.HistoryEntry, error) {
	var rows []historyRow
	err := r.actorJoined(ctx).
		Where("content_history.site_id = ? AND content_history.field_key = ?", siteID, fieldKey).
		Order("content_history.changed_at DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rowsToDomain(rows), nil
}

func (r *GormHistoryRepo) ListByItem(ctx context.Context, itemID string, limit int) ([]domain.HistoryEntry, error) {
	var rows []historyRow
	err := r.actorJoined(ctx).
		Where("content_history.item_id = ?", itemID).
		Order("content_history.changed_at DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rowsToDomain(rows), nil
}

// TrimToMostRecent deletes a site's entries beyond the newest keep rows and
// returns the number removed.
func (r *GormHistoryRepo) TrimToMostRecent(ctx context.Context, siteID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	result := r.db.WithContext(ctx).Exec(`
		DELETE FROM content_history
		WHERE site_id = ?
		  AND id NOT IN (
			SELECT id FROM content_history
			WHERE site_id = ?
			ORDER BY changed_at DESC
			LIMIT ?
		  )`, siteID, siteID, keep)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormHistoryRepo) actorJoined(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&HistoryModel{}).
		Select("content_history.*, users.email AS changed_by_email").
		Joins("LEFT JOIN users ON users.id = content_history.changed_by")
}

func rowsToDomain(rows []historyRow) []domain.HistoryEntry {
	entries := make([]domain.HistoryEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, *historyRowToDomain(&rows[i]))
	}
	return entries
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 20
	}
	return min(limit, 100)
}
