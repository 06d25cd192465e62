package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseWebhookEvent(t *testing.T) {
	t.Parallel()

	got, err := ParseWebhookEvent(" Content.Updated ")
	if err != nil {
		t.Fatalf("ParseWebhookEvent() unexpected error = %v", err)
	}
	if got != EventContentUpdated {
		t.Fatalf("ParseWebhookEvent() = %s, want %s", got, EventContentUpdated)
	}

	_, err = ParseWebhookEvent("content.archived")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseWebhookEvent() error = %v, want ErrValidation", err)
	}
}

func TestWebhookStatusIsTerminal(t *testing.T) {
	t.Parallel()

	if WebhookStatusPending.IsTerminal() {
		t.Fatal("pending must not be terminal")
	}
	if !WebhookStatusSuccess.IsTerminal() {
		t.Fatal("success must be terminal")
	}
	if !WebhookStatusFailed.IsTerminal() {
		t.Fatal("failed must be terminal")
	}
}

func TestWebhookPayloadEncode(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	payload := NewWebhookPayload("site-1", EventContentUpdated, WebhookData{
		FieldKey: "title",
		Changes:  map[string]any{"title": "B"},
	}, at)

	body, err := payload.Encode()
	if err != nil {
		t.Fatalf("Encode() unexpected error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if decoded["event"] != "content.updated" {
		t.Fatalf("event = %v, want content.updated", decoded["event"])
	}
	if decoded["siteId"] != "site-1" {
		t.Fatalf("siteId = %v, want site-1", decoded["siteId"])
	}
	if decoded["timestamp"] != "2025-03-14T09:26:53Z" {
		t.Fatalf("timestamp = %v, want RFC3339 UTC", decoded["timestamp"])
	}

	// Encoding must be deterministic: the stored bytes are the signature input.
	again, err := payload.Encode()
	if err != nil {
		t.Fatalf("Encode() unexpected error = %v", err)
	}
	if string(body) != string(again) {
		t.Fatalf("Encode() not deterministic:\n%s\n%s", body, again)
	}
}

func TestWebhookPayloadEncodeRejectsInvalidEvent(t *testing.T) {
	t.Parallel()

	payload := WebhookPayload{Event: "content.archived", SiteID: "site-1"}
	if _, err := payload.Encode(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Encode() error = %v, want ErrValidation", err)
	}
}

func TestWebhookLogExhausted(t *testing.T) {
	t.Parallel()

	log := WebhookLog{Attempts: 2}
	if log.Exhausted() {
		t.Fatal("two attempts must not exhaust the budget")
	}
	log.Attempts = 3
	if !log.Exhausted() {
		t.Fatal("three attempts must exhaust the budget")
	}
}
