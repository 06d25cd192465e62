package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"github.com/bifrost-cms/bifrost/internal/repository"
	"go.uber.org/zap"
)

// ContentService manages a site's named content fields. Every successful
// write fans out two detached side effects: history entries for the fields
// that actually changed, and one webhook event for the mutation.
type ContentService struct {
	sites    repository.SiteRepository
	content  repository.ContentRepository
	recorder *Recorder
	trigger  *Trigger
	tasks    *Tasks
	logger   *zap.Logger
}

func NewContentService(
	sites repository.SiteRepository,
	content repository.ContentRepository,
	recorder *Recorder,
	trigger *Trigger,
	tasks *Tasks,
	logger *zap.Logger,
) (*ContentService, error) {
	if sites == nil {
		return nil, fmt.Errorf("site repository is required")
	}
	if content == nil {
		return nil, fmt.Errorf("content repository is required")
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

	return &ContentService{
		sites:    sites,
		content:  content,
		recorder: recorder,
		trigger:  trigger,
		tasks:    tasks,
		logger:   logger,
	}, nil
}

// SiteContent returns all fields of a site keyed by field key.
func (s *ContentService) SiteContent(ctx context.Context, siteID string) (map[string]json.RawMessage, error) {
	if _, err := s.sites.GetByID(ctx, siteID); err != nil {
		return nil, err
	}

	fields, err := s.content.ListBySite(ctx, siteID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(fields))
	for i := range fields {
		out[fields[i].FieldKey] = fields[i].Value.Raw
	}
	return out, nil
}

func (s *ContentService) Field(ctx context.Context, siteID, fieldKey string) (*domain.ContentField, error) {
	return s.content.GetByFieldKey(ctx, siteID, fieldKey)
}

// UpdateFields upserts the given fields and returns the new field states.
// Unchanged values still bump the version but record no history; the webhook
// fires once for the whole batch.
func (s *ContentService) UpdateFields(ctx context.Context, siteID string, values map[string]json.RawMessage, changedBy *string) ([]domain.ContentField, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no fields to update", domain.ErrValidation)
	}
	for key := range values {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%w: field key must not be blank", domain.ErrValidation)
		}
	}
	if _, err := s.sites.GetByID(ctx, siteID); err != nil {
		return nil, err
	}

	existing, err := s.content.ListBySite(ctx, siteID)
	if err != nil {
		return nil, err
	}
	previous := make(map[string]domain.JSONValue, len(existing))
	for i := range existing {
		previous[existing[i].FieldKey] = existing[i].Value
	}

	updated := make([]domain.ContentField, 0, len(values))
	changes := make(map[string]any, len(values))
	for key, raw := range values {
		field := &domain.ContentField{
			SiteID:   siteID,
			FieldKey: key,
			Value:    domain.JSONValue{Raw: raw},
		}
		if err := s.content.Upsert(ctx, field); err != nil {
			return nil, fmt.Errorf("failed to upsert field %s: %w", key, err)
		}
		updated = append(updated, *field)

		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			changes[key] = decoded
		}
	}

	for i := range updated {
		field := updated[i]
		oldValue := previous[field.FieldKey]
		s.tasks.Go("record-field-history", func(ctx context.Context) error {
			s.recorder.RecordFieldChange(ctx, siteID, field.FieldKey, oldValue, field.Value, changedBy)
			return nil
		})
	}

	s.tasks.Go("fire-content-updated", func(ctx context.Context) error {
		_, err := s.trigger.Fire(ctx, siteID, domain.EventContentUpdated, domain.WebhookData{Changes: changes})
		return err
	})

	return updated, nil
}

// DeleteField removes one field and fires content.deleted.
func (s *ContentService) DeleteField(ctx context.Context, siteID, fieldKey string) error {
	if err := s.content.Delete(ctx, siteID, fieldKey); err != nil {
		return err
	}

	s.tasks.Go("fire-content-deleted", func(ctx context.Context) error {
		_, err := s.trigger.Fire(ctx, siteID, domain.EventContentDeleted, domain.WebhookData{FieldKey: fieldKey})
		return err
	})

	return nil
}
