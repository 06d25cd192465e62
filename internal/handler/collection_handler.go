package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"github.com/gofiber/fiber/v2"
)

type CollectionService interface {
	ListItems(ctx context.Context, siteID, collectionType string) ([]domain.CollectionItem, error)
	Item(ctx context.Context, siteID, itemID string) (*domain.CollectionItem, error)
	CreateItem(ctx context.Context, siteID, collectionType string, data json.RawMessage, changedBy *string) (*domain.CollectionItem, error)
	UpdateItem(ctx context.Context, siteID, itemID string, data json.RawMessage, changedBy *string) (*domain.CollectionItem, error)
	DeleteItem(ctx context.Context, siteID, itemID string) error
	ReorderItems(ctx context.Context, siteID, collectionType string, itemIDs []string) error
}

type CollectionHandler struct {
	service CollectionService
}

func NewCollectionHandler(service CollectionService) (*CollectionHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("collection service is required")
	}
	return &CollectionHandler{service: service}, nil
}

func RegisterCollectionRoutes(router fiber.Router, service CollectionService) error {
	h, err := NewCollectionHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/sites/:siteId/collections/:type", h.ListItems)
	v1.Post("/sites/:siteId/collections/:type", h.CreateItem)
	v1.Post("/sites/:siteId/collections/:type/reorder", h.ReorderItems)
	v1.Get("/sites/:siteId/items/:itemId", h.GetItem)
	v1.Put("/sites/:siteId/items/:itemId", h.UpdateItem)
	v1.Delete("/sites/:siteId/items/:itemId", h.DeleteItem)

	return nil
}

type itemRequest struct {
	Data json.RawMessage `json:"data"`
}

type reorderRequest struct {
	ItemIDs []string `json:"itemIds"`
}

type itemResponse struct {
	ID             string          `json:"id"`
	CollectionType string          `json:"collectionType"`
	Data           json.RawMessage `json:"data"`
	Position       int             `json:"position"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (h *CollectionHandler) ListItems(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	collectionType := strings.TrimSpace(c.Params("type"))

	items, err := h.service.ListItems(c.UserContext(), siteID, collectionType)
	if err != nil {
		return toHTTPError(err)
	}

	out := make([]itemResponse, 0, len(items))
	for i := range items {
		out = append(out, toItemResponse(&items[i]))
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (h *CollectionHandler) GetItem(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	itemID := strings.TrimSpace(c.Params("itemId"))

	item, err := h.service.Item(c.UserContext(), siteID, itemID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toItemResponse(item))
}

func (h *CollectionHandler) CreateItem(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	collectionType := strings.TrimSpace(c.Params("type"))

	var req itemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	item, err := h.service.CreateItem(c.UserContext(), siteID, collectionType, req.Data, actorFrom(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toItemResponse(item))
}

func (h *CollectionHandler) UpdateItem(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	itemID := strings.TrimSpace(c.Params("itemId"))

	var req itemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	item, err := h.service.UpdateItem(c.UserContext(), siteID, itemID, req.Data, actorFrom(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toItemResponse(item))
}

func (h *CollectionHandler) DeleteItem(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	itemID := strings.TrimSpace(c.Params("itemId"))

	if err := h.service.DeleteItem(c.UserContext(), siteID, itemID); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CollectionHandler) ReorderItems(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	collectionType := strings.TrimSpace(c.Params("type"))

	var req reorderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.service.ReorderItems(c.UserContext(), siteID, collectionType, req.ItemIDs); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"siteId":         siteID,
		"collectionType": collectionType,
		"itemIds":        req.ItemIDs,
	})
}

func toItemResponse(i *domain.CollectionItem) itemResponse {
	return itemResponse{
		ID:             i.ID,
		CollectionType: i.CollectionType,
		Data:           i.Data.Raw,
		Position:       i.Position,
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      i.UpdatedAt,
	}
}
