package queue

import (
	"fmt"
	"strings"

	"github.com/bifrost-cms/bifrost/internal/domain"
)

// DeliveryMessage is the broker payload asking a worker to attempt delivery
// of one webhook log. The payload itself stays in the database; the message
// only names the row.
type DeliveryMessage struct {
	LogID  string              `json:"logId"`
	SiteID string              `json:"siteId,omitempty"`
	Event  domain.WebhookEvent `json:"event"`
}

func (m DeliveryMessage) Validate() error {
	if strings.TrimSpace(m.LogID) == "" {
		return fmt.Errorf("logId is required")
	}
	if !m.Event.IsValid() {
		return fmt.Errorf("invalid event %q", m.Event)
	}
	return nil
}
