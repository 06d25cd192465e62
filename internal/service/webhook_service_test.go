package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"go.uber.org/zap"
)

func newTestWebhookService(t *testing.T, logs *fakeWebhookLogRepo, trigger *Trigger) *WebhookService {
	t.Helper()
	svc, err := NewWebhookService(logs, trigger, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWebhookService() error = %v", err)
	}
	return svc
}

func failedLog(t *testing.T) *domain.WebhookLog {
	t.Helper()
	log := pendingLog(t, 3)
	log.Status = domain.WebhookStatusFailed
	return log
}

func TestWebhookServiceRetriggerCreatesNewLog(t *testing.T) {
	t.Parallel()

	original := failedLog(t)
	var created *domain.WebhookLog

	logs := &fakeWebhookLogRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.WebhookLog, error) {
			return original, nil
		},
		createFn: func(ctx context.Context, log *domain.WebhookLog) error {
			created = log
			return nil
		},
	}
	sites := &fakeSiteRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Site, error) {
			return &domain.Site{ID: "site-1", WebhookURL: strPtr("https://example.com/hook")}, nil
		},
	}
	trigger, err := NewTrigger(sites, logs, &fakePublisher{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTrigger() error = %v", err)
	}

	svc := newTestWebhookService(t, logs, trigger)
	newID, err := svc.Retrigger(context.Background(), "site-1", "log-1")
	if err != nil {
		t.Fatalf("Retrigger() error = %v", err)
	}

	if created == nil {
		t.Fatal("retrigger must create a new log row")
	}
	if newID == original.ID || created.ID == original.ID {
		t.Fatal("retrigger must not reuse the failed log")
	}
	if created.Event != original.Event {
		t.Fatalf("event = %s, want %s", created.Event, original.Event)
	}
	if created.Attempts != 0 || created.Status != domain.WebhookStatusPending {
		t.Fatalf("new log = %+v, want fresh pending row", created)
	}
}

func TestWebhookServiceRetriggerRejectsNonFailed(t *testing.T) {
	t.Parallel()

	for _, status := range []domain.WebhookStatus{domain.WebhookStatusPending, domain.WebhookStatusSuccess} {
		log := pendingLog(t, 1)
		log.Status = status

		logs := &fakeWebhookLogRepo{
			getByIDFn: func(ctx context.Context, id string) (*domain.WebhookLog, error) {
				return log, nil
			},
		}
		trigger, err := NewTrigger(&fakeSiteRepo{}, logs, &fakePublisher{}, zap.NewNop())
		if err != nil {
			t.Fatalf("NewTrigger() error = %v", err)
		}

		svc := newTestWebhookService(t, logs, trigger)
		if _, err := svc.Retrigger(context.Background(), "site-1", "log-1"); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("status %s: error = %v, want ErrConflict", status, err)
		}
	}
}

func TestWebhookServiceTestFire(t *testing.T) {
	t.Parallel()

	var created *domain.WebhookLog
	logs := &fakeWebhookLogRepo{
		createFn: func(ctx context.Context, log *domain.WebhookLog) error {
			created = log
			return nil
		},
	}
	sites := &fakeSiteRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Site, error) {
			return &domain.Site{ID: "site-1", WebhookURL: strPtr("https://example.com/hook")}, nil
		},
	}
	trigger, err := NewTrigger(sites, logs, &fakePublisher{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTrigger() error = %v", err)
	}

	svc := newTestWebhookService(t, logs, trigger)
	logID, err := svc.TestFire(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("TestFire() error = %v", err)
	}
	if created == nil || created.ID != logID {
		t.Fatal("test fire must create a log row")
	}
	if created.Event != domain.EventContentUpdated {
		t.Fatalf("event = %s, want %s", created.Event, domain.EventContentUpdated)
	}
	var payload domain.WebhookPayload
	if err := json.Unmarshal([]byte(created.Payload), &payload); err != nil {
		t.Fatalf("payload unmarshal error = %v", err)
	}
	if payload.Data.Changes["_test"] != true {
		t.Fatalf("changes = %v, want _test marker", payload.Data.Changes)
	}
}

func TestWebhookServiceTestFireWithoutEndpoint(t *testing.T) {
	t.Parallel()

	sites := &fakeSiteRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Site, error) {
			return &domain.Site{ID: "site-1"}, nil
		},
	}
	logs := &fakeWebhookLogRepo{}
	trigger, err := NewTrigger(sites, logs, &fakePublisher{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTrigger() error = %v", err)
	}

	svc := newTestWebhookService(t, logs, trigger)
	if _, err := svc.TestFire(context.Background(), "site-1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict when no endpoint is configured", err)
	}
}

func TestWebhookServiceLogScopedToSite(t *testing.T) {
	t.Parallel()

	log := pendingLog(t, 0)
	logs := &fakeWebhookLogRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.WebhookLog, error) {
			return log, nil
		},
	}
	trigger, err := NewTrigger(&fakeSiteRepo{}, logs, &fakePublisher{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTrigger() error = %v", err)
	}

	svc := newTestWebhookService(t, logs, trigger)
	if _, err := svc.Log(context.Background(), "other-site", "log-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound for cross-site read", err)
	}
}
