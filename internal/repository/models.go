package repository

import (
	"encoding/json"
	"time"

	"github.com/bifrost-cms/bifrost/internal/domain"
)

// SiteModel is the persistence model for the sites table.
type SiteModel struct {
	ID         string  `gorm:"type:uuid;primaryKey"`
	Name       string  `gorm:"type:varchar(255);not null"`
	WebhookURL *string `gorm:"type:varchar(2048)"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (SiteModel) TableName() string {
	return "sites"
}

// UserModel is the persistence model for users, referenced by history
// entries as the mutation actor.
type UserModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Email     string `gorm:"type:varchar(255);not null;uniqueIndex"`
	CreatedAt time.Time
}

func (UserModel) TableName() string {
	return "users"
}

// ContentModel is the persistence model for content fields. Version is
// incremented on every upsert.
type ContentModel struct {
	SiteID    string `gorm:"type:uuid;primaryKey"`
	FieldKey  string `gorm:"type:varchar(255);primaryKey"`
	Value     string `gorm:"type:jsonb;not null"`
	Version   int    `gorm:"not null;default:1"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ContentModel) TableName() string {
	return "contents"
}

// CollectionItemModel is the persistence model for collection items.
type CollectionItemModel struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	SiteID         string `gorm:"type:uuid;not null"`
	CollectionType string `gorm:"type:varchar(255);not null"`
	Data           string `gorm:"type:jsonb;not null"`
	Position       int    `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (CollectionItemModel) TableName() string {
	return "collection_items"
}

// HistoryModel is the persistence model for the append-only mutation log.
// Rows are never updated; retention trimming is the only delete path.
type HistoryModel struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	SiteID         string  `gorm:"type:uuid;not null"`
	FieldKey       *string `gorm:"type:varchar(255)"`
	ItemID         *string `gorm:"type:uuid"`
	CollectionType *string `gorm:"type:varchar(255)"`
	OldValue       *string `gorm:"type:jsonb"`
	NewValue       string  `gorm:"type:jsonb;not null"`
	ChangedAt      time.Time
	ChangedBy      *string `gorm:"type:uuid"`
}

func (HistoryModel) TableName() string {
	return "content_history"
}

// historyRow is the read shape for history queries joined with the actor's
// email.
type historyRow struct {
	HistoryModel
	ChangedByEmail *string `gorm:"column:changed_by_email"`
}

// WebhookLogModel is the persistence model for webhook delivery logs.
// Payload is stored as raw text so the signed bytes stay identical across
// attempts.
type WebhookLogModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	SiteID        string `gorm:"type:uuid;not null"`
	Event         string `gorm:"type:varchar(40);not null"`
	Payload       string `gorm:"type:text;not null"`
	Status        string `gorm:"type:varchar(10);not null"`
	Attempts      int    `gorm:"not null;default:0"`
	LastAttempt   *time.Time
	ResponseCode  *int    `gorm:"type:int"`
	ErrorMessage  *string `gorm:"type:text"`
	NextAttemptAt *time.Time
	LockedUntil   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (WebhookLogModel) TableName() string {
	return "webhook_logs"
}

func siteModelToDomain(m *SiteModel) *domain.Site {
	if m == nil {
		return nil
	}

	return &domain.Site{
		ID:         m.ID,
		Name:       m.Name,
		WebhookURL: m.WebhookURL,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func contentModelToDomain(m *ContentModel) *domain.ContentField {
	if m == nil {
		return nil
	}

	return &domain.ContentField{
		SiteID:    m.SiteID,
		FieldKey:  m.FieldKey,
		Value:     domain.JSONValue{Raw: json.RawMessage(m.Value)},
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func itemModelToDomain(m *CollectionItemModel) *domain.CollectionItem {
	if m == nil {
		return nil
	}

	return &domain.CollectionItem{
		ID:             m.ID,
		SiteID:         m.SiteID,
		CollectionType: m.CollectionType,
		Data:           domain.JSONValue{Raw: json.RawMessage(m.Data)},
		Position:       m.Position,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func historyModelFromDomain(e *domain.HistoryEntry) *HistoryModel {
	if e == nil {
		return nil
	}

	var oldValue *string
	if !e.OldValue.IsNull() {
		value := string(e.OldValue.Raw)
		oldValue = &value
	}

	return &HistoryModel{
		ID:             e.ID,
		SiteID:         e.SiteID,
		FieldKey:       e.FieldKey,
		ItemID:         e.ItemID,
		CollectionType: e.CollectionType,
		OldValue:       oldValue,
		NewValue:       string(e.NewValue.Raw),
		ChangedAt:      e.ChangedAt,
		ChangedBy:      e.ChangedBy,
	}
}

func historyRowToDomain(r *historyRow) *domain.HistoryEntry {
	if r == nil {
		return nil
	}

	entry := &domain.HistoryEntry{
		ID:             r.ID,
		SiteID:         r.SiteID,
		FieldKey:       r.FieldKey,
		ItemID:         r.ItemID,
		CollectionType: r.CollectionType,
		NewValue:       domain.JSONValue{Raw: json.RawMessage(r.NewValue)},
		ChangedAt:      r.ChangedAt,
		ChangedBy:      r.ChangedBy,
		ChangedByEmail: r.ChangedByEmail,
	}
	if r.OldValue != nil {
		entry.OldValue = domain.JSONValue{Raw: json.RawMessage(*r.OldValue)}
	}
	return entry
}

func webhookLogModelFromDomain(l *domain.WebhookLog) *WebhookLogModel {
	if l == nil {
		return nil
	}

	return &WebhookLogModel{
		ID:            l.ID,
		SiteID:        l.SiteID,
		Event:         l.Event.String(),
		Payload:       l.Payload,
		Status:        l.Status.String(),
		Attempts:      l.Attempts,
		LastAttempt:   l.LastAttempt,
		ResponseCode:  l.ResponseCode,
		ErrorMessage:  l.ErrorMessage,
		NextAttemptAt: l.NextAttemptAt,
		LockedUntil:   l.LockedUntil,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

func webhookLogModelToDomain(m *WebhookLogModel) *domain.WebhookLog {
	if m == nil {
		return nil
	}

	return &domain.WebhookLog{
		ID:            m.ID,
		SiteID:        m.SiteID,
		Event:         domain.WebhookEvent(m.Event),
		Payload:       m.Payload,
		Status:        domain.WebhookStatus(m.Status),
		Attempts:      m.Attempts,
		LastAttempt:   m.LastAttempt,
		ResponseCode:  m.ResponseCode,
		ErrorMessage:  m.ErrorMessage,
		NextAttemptAt: m.NextAttemptAt,
		LockedUntil:   m.LockedUntil,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
