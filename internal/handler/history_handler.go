package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"github.com/bifrost-cms/bifrost/internal/repository"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100

	defaultTargetHistoryLimit = 20
)

type HistoryService interface {
	SiteHistory(ctx context.Context, siteID string, params repository.HistoryListParams) ([]domain.HistoryEntry, int64, error)
	FieldHistory(ctx context.Context, siteID, fieldKey string, limit int) ([]domain.HistoryEntry, error)
	ItemHistory(ctx context.Context, itemID string, limit int) ([]domain.HistoryEntry, error)
	Entry(ctx context.Context, siteID, entryID string) (*domain.HistoryEntry, error)
	Restore(ctx context.Context, siteID, entryID string, restoredBy *string) (domain.JSONValue, error)
}

type HistoryHandler struct {
	service HistoryService
}

func NewHistoryHandler(service HistoryService) (*HistoryHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("history service is required")
	}
	return &HistoryHandler{service: service}, nil
}

func RegisterHistoryRoutes(router fiber.Router, service HistoryService) error {
	h, err := NewHistoryHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/sites/:siteId/history", h.ListSiteHistory)
	v1.Get("/sites/:siteId/history/fields/:fieldKey", h.ListFieldHistory)
	v1.Get("/sites/:siteId/history/items/:itemId", h.ListItemHistory)
	v1.Get("/sites/:siteId/history/:entryId", h.GetEntry)
	v1.Post("/sites/:siteId/history/:entryId/restore", h.Restore)

	return nil
}

type historyEntryResponse struct {
	ID             string          `json:"id"`
	FieldKey       *string         `json:"fieldKey,omitempty"`
	ItemID         *string         `json:"itemId,omitempty"`
	CollectionType *string         `json:"collectionType,omitempty"`
	OldValue       json.RawMessage `json:"oldValue,omitempty"`
	NewValue       json.RawMessage `json:"newValue"`
	ChangedAt      time.Time       `json:"changedAt"`
	ChangedBy      *string         `json:"changedBy,omitempty"`
	ChangedByEmail *string         `json:"changedByEmail,omitempty"`
}

type listHistoryResponse struct {
	Data []historyEntryResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type restoreResponse struct {
	EntryID       string          `json:"entryId"`
	RestoredValue json.RawMessage `json:"restoredValue"`
}

func (h *HistoryHandler) ListSiteHistory(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	params, err := parseHistoryListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	entries, total, err := h.service.SiteHistory(c.UserContext(), siteID, params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listHistoryResponse{
		Data: toHistoryEntryResponses(entries),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *HistoryHandler) ListFieldHistory(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	fieldKey := strings.TrimSpace(c.Params("fieldKey"))
	limit := c.QueryInt("limit", defaultTargetHistoryLimit)

	entries, err := h.service.FieldHistory(c.UserContext(), siteID, fieldKey, limit)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toHistoryEntryResponses(entries))
}

func (h *HistoryHandler) ListItemHistory(c *fiber.Ctx) error {
	itemID := strings.TrimSpace(c.Params("itemId"))
	limit := c.QueryInt("limit", defaultTargetHistoryLimit)

	entries, err := h.service.ItemHistory(c.UserContext(), itemID, limit)
	if err != nil {
		return toHTTPError(err)
	}

	// Item IDs are global, entries are not: drop rows of other sites.
	siteID := strings.TrimSpace(c.Params("siteId"))
	scoped := make([]domain.HistoryEntry, 0, len(entries))
	for i := range entries {
		if entries[i].SiteID == siteID {
			scoped = append(scoped, entries[i])
		}
	}
	return c.Status(fiber.StatusOK).JSON(toHistoryEntryResponses(scoped))
}

func (h *HistoryHandler) GetEntry(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	entryID := strings.TrimSpace(c.Params("entryId"))

	entry, err := h.service.Entry(c.UserContext(), siteID, entryID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toHistoryEntryResponse(entry))
}

// Restore writes the entry's captured state back to its target, be that a
// content field or a collection item.
func (h *HistoryHandler) Restore(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	entryID := strings.TrimSpace(c.Params("entryId"))

	value, err := h.service.Restore(c.UserContext(), siteID, entryID, actorFrom(c))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(restoreResponse{
		EntryID:       entryID,
		RestoredValue: value.Raw,
	})
}

func toHistoryEntryResponse(e *domain.HistoryEntry) historyEntryResponse {
	return historyEntryResponse{
		ID:             e.ID,
		FieldKey:       e.FieldKey,
		ItemID:         e.ItemID,
		CollectionType: e.CollectionType,
		OldValue:       e.OldValue.Raw,
		NewValue:       e.NewValue.Raw,
		ChangedAt:      e.ChangedAt,
		ChangedBy:      e.ChangedBy,
		ChangedByEmail: e.ChangedByEmail,
	}
}

func toHistoryEntryResponses(entries []domain.HistoryEntry) []historyEntryResponse {
	out := make([]historyEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, toHistoryEntryResponse(&entries[i]))
	}
	return out
}

func parseHistoryListParams(c *fiber.Ctx) (repository.HistoryListParams, error) {
	params := repository.HistoryListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.HistoryListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.HistoryListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}
	return params, nil
}
