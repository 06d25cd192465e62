package domain

import (
	"fmt"
	"strings"
	"time"
)

// Site is a tenant: its content, history and webhook target are isolated
// from every other site.
type Site struct {
	ID         string
	Name       string
	WebhookURL *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasWebhook reports whether the site has an endpoint configured.
func (s *Site) HasWebhook() bool {
	return s != nil && s.WebhookURL != nil && strings.TrimSpace(*s.WebhookURL) != ""
}

// User is referenced by history entries as the mutation actor.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// ContentField is one named content value of a site. Version increments on
// every upsert.
type ContentField struct {
	SiteID    string
	FieldKey  string
	Value     JSONValue
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *ContentField) Validate() error {
	if strings.TrimSpace(c.SiteID) == "" {
		return fmt.Errorf("%w: siteId is required", ErrValidation)
	}
	if strings.TrimSpace(c.FieldKey) == "" {
		return fmt.Errorf("%w: fieldKey is required", ErrValidation)
	}
	return nil
}

// CollectionItem is one structured record in a named collection of a site.
type CollectionItem struct {
	ID             string
	SiteID         string
	CollectionType string
	Data           JSONValue
	Position       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (i *CollectionItem) Validate() error {
	if strings.TrimSpace(i.SiteID) == "" {
		return fmt.Errorf("%w: siteId is required", ErrValidation)
	}
	if strings.TrimSpace(i.CollectionType) == "" {
		return fmt.Errorf("%w: collectionType is required", ErrValidation)
	}
	if i.Data.IsNull() {
		return fmt.Errorf("%w: data is required", ErrValidation)
	}
	return nil
}
