package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"go.uber.org/zap"
)

type collectionFixture struct {
	svc      *CollectionService
	tasks    *Tasks
	items    *fakeCollectionRepo
	mu       sync.Mutex
	recorded []*domain.HistoryEntry
	logsMade []*domain.WebhookLog
}

func newCollectionFixture(t *testing.T, site *domain.Site, items *fakeCollectionRepo) *collectionFixture {
	t.Helper()
	f := &collectionFixture{items: items}

	sites := &fakeSiteRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Site, error) {
			if site == nil || site.ID != id {
				return nil, domain.ErrNotFound
			}
			return site, nil
		},
	}
	history := &fakeHistoryRepo{
		createFn: func(ctx context.Context, entry *domain.HistoryEntry) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.recorded = append(f.recorded, entry)
			return nil
		},
	}
	logs := &fakeWebhookLogRepo{
		createFn: func(ctx context.Context, log *domain.WebhookLog) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.logsMade = append(f.logsMade, log)
			return nil
		},
	}

	recorder, err := NewRecorder(history, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	trigger, err := NewTrigger(sites, logs, &fakePublisher{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTrigger() error = %v", err)
	}
	f.tasks = NewTasks(time.Second, zap.NewNop())

	f.svc, err = NewCollectionService(sites, items, recorder, trigger, f.tasks, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCollectionService() error = %v", err)
	}
	return f
}

func (f *collectionFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.tasks.Shutdown(ctx); err != nil {
		t.Fatalf("tasks did not drain: %v", err)
	}
}

func TestCollectionServiceCreateItemAppendsAtEnd(t *testing.T) {
	t.Parallel()

	site := &domain.Site{ID: "site-1", WebhookURL: strPtr("https://example.com/hook")}
	var created *domain.CollectionItem
	items := &fakeCollectionRepo{
		listFn: func(ctx context.Context, siteID, collectionType string) ([]domain.CollectionItem, error) {
			return []domain.CollectionItem{{ID: "a"}, {ID: "b"}}, nil
		},
		createFn: func(ctx context.Context, item *domain.CollectionItem) error {
			created = item
			return nil
		},
	}
	f := newCollectionFixture(t, site, items)

	item, err := f.svc.CreateItem(context.Background(), "site-1", "posts", json.RawMessage(`{"title":"first"}`), nil)
	if err != nil {
		t.Fatalf("CreateItem() error = %v", err)
	}
	if created == nil || created.Position != 2 {
		t.Fatalf("created = %+v, want position 2", created)
	}
	if item.ID == "" {
		t.Fatal("item id must be assigned")
	}

	f.drain(t)

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recorded) != 1 {
		t.Fatalf("recorded %d history entries, want 1", len(f.recorded))
	}
	if !f.recorded[0].OldValue.IsNull() {
		t.Fatal("creation entry must have a null old value")
	}
	if f.recorded[0].CollectionType == nil || *f.recorded[0].CollectionType != "posts" {
		t.Fatalf("collectionType = %v", f.recorded[0].CollectionType)
	}
	if len(f.logsMade) != 1 || f.logsMade[0].Event != domain.EventCollectionCreated {
		t.Fatalf("logs = %+v, want one collection.created", f.logsMade)
	}
}

func TestCollectionServiceUpdateItemRecordsOldAndNew(t *testing.T) {
	t.Parallel()

	site := &domain.Site{ID: "site-1"}
	items := &fakeCollectionRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.CollectionItem, error) {
			return &domain.CollectionItem{
				ID: id, SiteID: "site-1", CollectionType: "posts",
				Data: domain.JSONValue{Raw: []byte(`{"title":"old"}`)},
			}, nil
		},
	}
	f := newCollectionFixture(t, site, items)

	if _, err := f.svc.UpdateItem(context.Background(), "site-1", "item-1", json.RawMessage(`{"title":"new"}`), nil); err != nil {
		t.Fatalf("UpdateItem() error = %v", err)
	}

	f.drain(t)

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recorded) != 1 {
		t.Fatalf("recorded %d history entries, want 1", len(f.recorded))
	}
	if string(f.recorded[0].OldValue.Raw) != `{"title":"old"}` {
		t.Fatalf("old value = %s", f.recorded[0].OldValue.Raw)
	}
	if string(f.recorded[0].NewValue.Raw) != `{"title":"new"}` {
		t.Fatalf("new value = %s", f.recorded[0].NewValue.Raw)
	}
}

func TestCollectionServiceItemScopedToSite(t *testing.T) {
	t.Parallel()

	site := &domain.Site{ID: "site-1"}
	items := &fakeCollectionRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.CollectionItem, error) {
			return &domain.CollectionItem{ID: id, SiteID: "other-site", CollectionType: "posts"}, nil
		},
	}
	f := newCollectionFixture(t, site, items)

	if _, err := f.svc.Item(context.Background(), "site-1", "item-1"); err == nil {
		t.Fatal("item of another site must read as not found")
	}
}

func TestCollectionServiceDeleteItemFiresEventWithoutHistory(t *testing.T) {
	t.Parallel()

	site := &domain.Site{ID: "site-1", WebhookURL: strPtr("https://example.com/hook")}
	items := &fakeCollectionRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.CollectionItem, error) {
			return &domain.CollectionItem{ID: id, SiteID: "site-1", CollectionType: "posts", Data: jsonValue(t, `{}`)}, nil
		},
	}
	f := newCollectionFixture(t, site, items)

	if err := f.svc.DeleteItem(context.Background(), "site-1", "item-1"); err != nil {
		t.Fatalf("DeleteItem() error = %v", err)
	}

	f.drain(t)

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recorded) != 0 {
		t.Fatalf("recorded %d history entries, want 0 for delete", len(f.recorded))
	}
	if len(f.logsMade) != 1 || f.logsMade[0].Event != domain.EventCollectionDeleted {
		t.Fatalf("logs = %+v, want one collection.deleted", f.logsMade)
	}
}

func TestCollectionServiceReorderFiresEvent(t *testing.T) {
	t.Parallel()

	site := &domain.Site{ID: "site-1", WebhookURL: strPtr("https://example.com/hook")}
	var gotOrder []string
	items := &fakeCollectionRepo{
		reorderFn: func(ctx context.Context, siteID, collectionType string, itemIDs []string) error {
			gotOrder = itemIDs
			return nil
		},
	}
	f := newCollectionFixture(t, site, items)

	if err := f.svc.ReorderItems(context.Background(), "site-1", "posts", []string{"b", "a"}); err != nil {
		t.Fatalf("ReorderItems() error = %v", err)
	}
	if len(gotOrder) != 2 || gotOrder[0] != "b" {
		t.Fatalf("order = %v", gotOrder)
	}

	f.drain(t)

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.logsMade) != 1 || f.logsMade[0].Event != domain.EventCollectionReordered {
		t.Fatalf("logs = %+v, want one collection.reordered", f.logsMade)
	}
}
