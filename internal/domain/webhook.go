package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// WebhookStatus is the delivery lifecycle state of a webhook log.
// Transitions are monotone: pending may repeat, success and failed are
// terminal.
type WebhookStatus string

const (
	WebhookStatusPending WebhookStatus = "pending"
	WebhookStatusSuccess WebhookStatus = "success"
	WebhookStatusFailed  WebhookStatus = "failed"
)

func (s WebhookStatus) String() string { return string(s) }

func (s WebhookStatus) IsValid() bool {
	switch s {
	case WebhookStatusPending, WebhookStatusSuccess, WebhookStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transition occurs.
func (s WebhookStatus) IsTerminal() bool {
	return s == WebhookStatusSuccess || s == WebhookStatusFailed
}

// WebhookEvent enumerates the outbound event families.
type WebhookEvent string

const (
	EventContentUpdated      WebhookEvent = "content.updated"
	EventContentDeleted      WebhookEvent = "content.deleted"
	EventCollectionCreated   WebhookEvent = "collection.created"
	EventCollectionUpdated   WebhookEvent = "collection.updated"
	EventCollectionDeleted   WebhookEvent = "collection.deleted"
	EventCollectionReordered WebhookEvent = "collection.reordered"
)

func (e WebhookEvent) String() string { return string(e) }

func (e WebhookEvent) IsValid() bool {
	switch e {
	case EventContentUpdated, EventContentDeleted,
		EventCollectionCreated, EventCollectionUpdated,
		EventCollectionDeleted, EventCollectionReordered:
		return true
	}
	return false
}

func ParseWebhookEvent(s string) (WebhookEvent, error) {
	e := WebhookEvent(strings.ToLower(strings.TrimSpace(s)))
	if !e.IsValid() {
		return "", fmt.Errorf("%w: invalid webhook event %q", ErrValidation, s)
	}
	return e, nil
}

// WebhookData is the event-specific section of a payload. Content events set
// FieldKey and/or Changes; collection events set CollectionType, ItemID and
// Changes.
type WebhookData struct {
	FieldKey       string         `json:"fieldKey,omitempty"`
	CollectionType string         `json:"collectionType,omitempty"`
	ItemID         string         `json:"itemId,omitempty"`
	Changes        map[string]any `json:"changes,omitempty"`
}

// WebhookPayload is the wire body posted to a site's endpoint. It is
// serialized once when the log row is created and the stored bytes are
// reused verbatim on every attempt so the HMAC signature is reproducible.
type WebhookPayload struct {
	Event     WebhookEvent `json:"event"`
	SiteID    string       `json:"siteId"`
	Timestamp string       `json:"timestamp"`
	Data      WebhookData  `json:"data"`
}

func NewWebhookPayload(siteID string, event WebhookEvent, data WebhookData, at time.Time) WebhookPayload {
	return WebhookPayload{
		Event:     event,
		SiteID:    siteID,
		Timestamp: at.UTC().Format(time.RFC3339),
		Data:      data,
	}
}

// Encode returns the canonical payload bytes used as the POST body and as
// the signature input.
func (p WebhookPayload) Encode() ([]byte, error) {
	if !p.Event.IsValid() {
		return nil, fmt.Errorf("%w: invalid webhook event %q", ErrValidation, p.Event)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}
	return body, nil
}

// MaxWebhookAttempts is the delivery attempt cap; after the third failure a
// log is terminal and only a manual re-trigger creates a new one.
const MaxWebhookAttempts = 3

// WebhookLog tracks the whole attempt chain for one triggering event: one
// row per event, updated in place by every attempt until terminal.
type WebhookLog struct {
	ID            string
	SiteID        string
	Event         WebhookEvent
	Payload       string // canonical JSON snapshot, immutable
	Status        WebhookStatus
	Attempts      int
	LastAttempt   *time.Time
	ResponseCode  *int
	ErrorMessage  *string
	NextAttemptAt *time.Time
	LockedUntil   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (l *WebhookLog) Validate() error {
	if strings.TrimSpace(l.SiteID) == "" {
		return fmt.Errorf("%w: siteId is required", ErrValidation)
	}
	if !l.Event.IsValid() {
		return fmt.Errorf("%w: invalid webhook event %q", ErrValidation, l.Event)
	}
	if strings.TrimSpace(l.Payload) == "" {
		return fmt.Errorf("%w: payload is required", ErrValidation)
	}
	if !l.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, l.Status)
	}
	return nil
}

// Exhausted reports whether the attempt budget is spent.
func (l *WebhookLog) Exhausted() bool {
	return l.Attempts >= MaxWebhookAttempts
}
