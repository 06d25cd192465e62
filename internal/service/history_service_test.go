package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"go.uber.org/zap"
)

func newTestHistoryService(t *testing.T, history *fakeHistoryRepo, content *fakeContentRepo, items *fakeCollectionRepo) *HistoryService {
	t.Helper()
	svc, err := NewHistoryService(history, content, items, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHistoryService() error = %v", err)
	}
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return svc
}

func fieldEntry(id, siteID, fieldKey, oldValue, newValue string) *domain.HistoryEntry {
	entry := &domain.HistoryEntry{
		ID:       id,
		SiteID:   siteID,
		FieldKey: &fieldKey,
		NewValue: domain.JSONValue{Raw: []byte(newValue)},
	}
	if oldValue != "" {
		entry.OldValue = domain.JSONValue{Raw: []byte(oldValue)}
	}
	return entry
}

func TestHistoryServiceRestoreFieldWritesBackOldValue(t *testing.T) {
	t.Parallel()

	entry := fieldEntry("h1", "site-1", "title", `"v1"`, `"v2"`)
	var upserted *domain.ContentField
	var appended *domain.HistoryEntry

	history := &fakeHistoryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.HistoryEntry, error) {
			return entry, nil
		},
		createFn: func(ctx context.Context, e *domain.HistoryEntry) error {
			appended = e
			return nil
		},
	}
	content := &fakeContentRepo{
		getByFieldKeyFn: func(ctx context.Context, siteID, fieldKey string) (*domain.ContentField, error) {
			return &domain.ContentField{SiteID: siteID, FieldKey: fieldKey, Value: jsonValue(t, `"v2"`), Version: 7}, nil
		},
		upsertFn: func(ctx context.Context, field *domain.ContentField) error {
			upserted = field
			return nil
		},
	}

	svc := newTestHistoryService(t, history, content, &fakeCollectionRepo{})
	actor := "user-1"
	value, err := svc.RestoreField(context.Background(), "site-1", "h1", &actor)
	if err != nil {
		t.Fatalf("RestoreField() error = %v", err)
	}

	if string(value.Raw) != `"v1"` {
		t.Fatalf("restored value = %s, want \"v1\"", value.Raw)
	}
	if upserted == nil || string(upserted.Value.Raw) != `"v1"` {
		t.Fatalf("upserted = %+v", upserted)
	}
	if appended == nil {
		t.Fatal("restore must append a fresh history entry")
	}
	if string(appended.OldValue.Raw) != `"v2"` || string(appended.NewValue.Raw) != `"v1"` {
		t.Fatalf("appended entry values = %s -> %s", appended.OldValue.Raw, appended.NewValue.Raw)
	}
	if appended.ChangedBy == nil || *appended.ChangedBy != "user-1" {
		t.Fatalf("changedBy = %v", appended.ChangedBy)
	}
}

func TestHistoryServiceRestoreCreationEntryReappliesValue(t *testing.T) {
	t.Parallel()

	// A creation entry has no old value; restoring it re-applies its value.
	entry := fieldEntry("h1", "site-1", "title", "", `"v1"`)
	history := &fakeHistoryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.HistoryEntry, error) {
			return entry, nil
		},
	}

	svc := newTestHistoryService(t, history, &fakeContentRepo{}, &fakeCollectionRepo{})
	value, err := svc.RestoreField(context.Background(), "site-1", "h1", nil)
	if err != nil {
		t.Fatalf("RestoreField() error = %v", err)
	}
	if string(value.Raw) != `"v1"` {
		t.Fatalf("restored value = %s, want \"v1\"", value.Raw)
	}
}

func TestHistoryServiceRestoreFieldRecreatesDeletedField(t *testing.T) {
	t.Parallel()

	entry := fieldEntry("h1", "site-1", "tagline", `"old"`, `"new"`)
	var upserted *domain.ContentField
	var appended *domain.HistoryEntry

	history := &fakeHistoryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.HistoryEntry, error) {
			return entry, nil
		},
		createFn: func(ctx context.Context, e *domain.HistoryEntry) error {
			appended = e
			return nil
		},
	}
	content := &fakeContentRepo{
		// Field was deleted after the entry was recorded.
		upsertFn: func(ctx context.Context, field *domain.ContentField) error {
			upserted = field
			return nil
		},
	}

	svc := newTestHistoryService(t, history, content, &fakeCollectionRepo{})
	if _, err := svc.RestoreField(context.Background(), "site-1", "h1", nil); err != nil {
		t.Fatalf("RestoreField() error = %v", err)
	}

	if upserted == nil {
		t.Fatal("restore must re-create the deleted field")
	}
	if appended == nil || !appended.OldValue.IsNull() {
		t.Fatalf("appended entry should record a null old value, got %+v", appended)
	}
}

func TestHistoryServiceRestoreFieldWrongSite(t *testing.T) {
	t.Parallel()

	entry := fieldEntry("h1", "site-2", "title", `"v1"`, `"v2"`)
	history := &fakeHistoryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.HistoryEntry, error) {
			return entry, nil
		},
	}
	content := &fakeContentRepo{
		upsertFn: func(ctx context.Context, field *domain.ContentField) error {
			t.Fatal("cross-site restore must not write")
			return nil
		},
	}

	svc := newTestHistoryService(t, history, content, &fakeCollectionRepo{})
	_, err := svc.RestoreField(context.Background(), "site-1", "h1", nil)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("RestoreField() error = %v, want ErrForbidden", err)
	}

	// The kind-dispatching entry point carries the same check.
	_, err = svc.Restore(context.Background(), "site-1", "h1", nil)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("Restore() error = %v, want ErrForbidden", err)
	}
}

func TestHistoryServiceRestoreItemWrongSite(t *testing.T) {
	t.Parallel()

	itemID := "item-1"
	entry := &domain.HistoryEntry{
		ID:       "h2",
		SiteID:   "site-2",
		ItemID:   &itemID,
		NewValue: jsonValue(t, `{"a":1}`),
	}
	history := &fakeHistoryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.HistoryEntry, error) {
			return entry, nil
		},
	}
	items := &fakeCollectionRepo{
		updateDataFn: func(ctx context.Context, id string, data domain.JSONValue) error {
			t.Fatal("cross-site restore must not write")
			return nil
		},
	}

	svc := newTestHistoryService(t, history, &fakeContentRepo{}, items)
	if _, err := svc.RestoreItem(context.Background(), "site-1", "h2", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("RestoreItem() error = %v, want ErrNotFound for foreign item entry", err)
	}
}

func TestHistoryServiceRestoreFieldRejectsItemEntry(t *testing.T) {
	t.Parallel()

	itemID := "item-1"
	entry := &domain.HistoryEntry{
		ID:       "h1",
		SiteID:   "site-1",
		ItemID:   &itemID,
		NewValue: domain.JSONValue{Raw: []byte(`{"a":1}`)},
	}
	history := &fakeHistoryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.HistoryEntry, error) {
			return entry, nil
		},
	}

	svc := newTestHistoryService(t, history, &fakeContentRepo{}, &fakeCollectionRepo{})
	_, err := svc.RestoreField(context.Background(), "site-1", "h1", nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestHistoryServiceRestoreItemUpdatesExisting(t *testing.T) {
	t.Parallel()

	itemID := "item-1"
	collectionType := "posts"
	entry := &domain.HistoryEntry{
		ID:             "h1",
		SiteID:         "site-1",
		ItemID:         &itemID,
		CollectionType: &collectionType,
		OldValue:       domain.JSONValue{Raw: []byte(`{"title":"v1"}`)},
		NewValue:       domain.JSONValue{Raw: []byte(`{"title":"v2"}`)},
	}
	var updatedData domain.JSONValue
	history := &fakeHistoryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.HistoryEntry, error) {
			return entry, nil
		},
	}
	items := &fakeCollectionRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.CollectionItem, error) {
			return &domain.CollectionItem{ID: itemID, SiteID: "site-1", CollectionType: collectionType, Data: jsonValue(t, `{"title":"v2"}`)}, nil
		},
		updateDataFn: func(ctx context.Context, id string, data domain.JSONValue) error {
			updatedData = data
			return nil
		},
		createFn: func(ctx context.Context, item *domain.CollectionItem) error {
			t.Fatal("existing item must be updated, not re-created")
			return nil
		},
	}

	svc := newTestHistoryService(t, history, &fakeContentRepo{}, items)
	value, err := svc.RestoreItem(context.Background(), "site-1", "h1", nil)
	if err != nil {
		t.Fatalf("RestoreItem() error = %v", err)
	}
	if string(value.Raw) != `{"title":"v1"}` {
		t.Fatalf("restored value = %s", value.Raw)
	}
	if string(updatedData.Raw) != `{"title":"v1"}` {
		t.Fatalf("updated data = %s", updatedData.Raw)
	}
}

func TestHistoryServiceRestoreItemRecreatesDeletedItem(t *testing.T) {
	t.Parallel()

	itemID := "item-1"
	collectionType := "posts"
	entry := &domain.HistoryEntry{
		ID:             "h1",
		SiteID:         "site-1",
		ItemID:         &itemID,
		CollectionType: &collectionType,
		OldValue:       domain.JSONValue{Raw: []byte(`{"title":"v1"}`)},
		NewValue:       domain.JSONValue{Raw: []byte(`{"title":"v2"}`)},
	}
	var created *domain.CollectionItem
	history := &fakeHistoryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.HistoryEntry, error) {
			return entry, nil
		},
	}
	items := &fakeCollectionRepo{
		createFn: func(ctx context.Context, item *domain.CollectionItem) error {
			created = item
			return nil
		},
	}

	svc := newTestHistoryService(t, history, &fakeContentRepo{}, items)
	if _, err := svc.RestoreItem(context.Background(), "site-1", "h1", nil); err != nil {
		t.Fatalf("RestoreItem() error = %v", err)
	}

	if created == nil {
		t.Fatal("deleted item must be re-created")
	}
	if created.ID != itemID {
		t.Fatalf("re-created id = %q, want original %q", created.ID, itemID)
	}
	if created.CollectionType != collectionType {
		t.Fatalf("collectionType = %q, want %q", created.CollectionType, collectionType)
	}
	if string(created.Data.Raw) != `{"title":"v1"}` {
		t.Fatalf("data = %s", created.Data.Raw)
	}
}

func TestHistoryServiceRestoreItemWithoutTypeCannotRecreate(t *testing.T) {
	t.Parallel()

	itemID := "item-1"
	entry := &domain.HistoryEntry{
		ID:       "h1",
		SiteID:   "site-1",
		ItemID:   &itemID,
		NewValue: domain.JSONValue{Raw: []byte(`{"title":"v1"}`)},
	}
	history := &fakeHistoryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.HistoryEntry, error) {
			return entry, nil
		},
	}

	svc := newTestHistoryService(t, history, &fakeContentRepo{}, &fakeCollectionRepo{})
	_, err := svc.RestoreItem(context.Background(), "site-1", "h1", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

// TestHistoryServiceDoubleRestore checks that restoring the entry a restore
// appended brings the value back again: v2 -> v1 -> v2.
func TestHistoryServiceDoubleRestore(t *testing.T) {
	t.Parallel()

	entries := map[string]*domain.HistoryEntry{
		"h1": fieldEntry("h1", "site-1", "title", `"v1"`, `"v2"`),
	}
	current := jsonValue(t, `"v2"`)

	history := &fakeHistoryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.HistoryEntry, error) {
			if e, ok := entries[id]; ok {
				return e, nil
			}
			return nil, domain.ErrNotFound
		},
		createFn: func(ctx context.Context, e *domain.HistoryEntry) error {
			entries[e.ID] = e
			return nil
		},
	}
	content := &fakeContentRepo{
		getByFieldKeyFn: func(ctx context.Context, siteID, fieldKey string) (*domain.ContentField, error) {
			return &domain.ContentField{SiteID: siteID, FieldKey: fieldKey, Value: current}, nil
		},
		upsertFn: func(ctx context.Context, field *domain.ContentField) error {
			current = field.Value
			return nil
		},
	}

	svc := newTestHistoryService(t, history, content, &fakeCollectionRepo{})

	first, err := svc.RestoreField(context.Background(), "site-1", "h1", nil)
	if err != nil {
		t.Fatalf("first RestoreField() error = %v", err)
	}
	if string(first.Raw) != `"v1"` {
		t.Fatalf("first restore = %s, want \"v1\"", first.Raw)
	}

	// Find the entry the first restore appended.
	var restoreEntryID string
	for id, e := range entries {
		if id != "h1" && e.FieldKey != nil {
			restoreEntryID = id
		}
	}
	if restoreEntryID == "" {
		t.Fatal("first restore did not append an entry")
	}

	second, err := svc.RestoreField(context.Background(), "site-1", restoreEntryID, nil)
	if err != nil {
		t.Fatalf("second RestoreField() error = %v", err)
	}
	if string(second.Raw) != `"v2"` {
		t.Fatalf("second restore = %s, want \"v2\"", second.Raw)
	}
	if string(current.Raw) != `"v2"` {
		t.Fatalf("current value = %s, want \"v2\"", current.Raw)
	}
}
