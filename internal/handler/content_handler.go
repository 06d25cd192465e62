package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bifrost-cms/bifrost/internal/domain"
	"github.com/gofiber/fiber/v2"
)

type ContentService interface {
	SiteContent(ctx context.Context, siteID string) (map[string]json.RawMessage, error)
	Field(ctx context.Context, siteID, fieldKey string) (*domain.ContentField, error)
	UpdateFields(ctx context.Context, siteID string, values map[string]json.RawMessage, changedBy *string) ([]domain.ContentField, error)
	DeleteField(ctx context.Context, siteID, fieldKey string) error
}

type ContentHandler struct {
	service ContentService
}

func NewContentHandler(service ContentService) (*ContentHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("content service is required")
	}
	return &ContentHandler{service: service}, nil
}

func RegisterContentRoutes(router fiber.Router, service ContentService) error {
	h, err := NewContentHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/sites/:siteId/content", h.GetContent)
	v1.Put("/sites/:siteId/content", h.UpdateContent)
	v1.Get("/sites/:siteId/content/:fieldKey", h.GetField)
	v1.Delete("/sites/:siteId/content/:fieldKey", h.DeleteField)

	return nil
}

type fieldResponse struct {
	FieldKey  string          `json:"fieldKey"`
	Value     json.RawMessage `json:"value"`
	Version   int             `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type updateContentResponse struct {
	SiteID string          `json:"siteId"`
	Fields []fieldResponse `json:"fields"`
}

func (h *ContentHandler) GetContent(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	content, err := h.service.SiteContent(c.UserContext(), siteID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(content)
}

func (h *ContentHandler) GetField(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	fieldKey := strings.TrimSpace(c.Params("fieldKey"))

	field, err := h.service.Field(c.UserContext(), siteID, fieldKey)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toFieldResponse(field))
}

func (h *ContentHandler) UpdateContent(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))

	var values map[string]json.RawMessage
	if err := json.Unmarshal(c.Body(), &values); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "request body must be a JSON object of field values")
	}

	updated, err := h.service.UpdateFields(c.UserContext(), siteID, values, actorFrom(c))
	if err != nil {
		return toHTTPError(err)
	}

	fields := make([]fieldResponse, 0, len(updated))
	for i := range updated {
		fields = append(fields, toFieldResponse(&updated[i]))
	}

	return c.Status(fiber.StatusOK).JSON(updateContentResponse{
		SiteID: siteID,
		Fields: fields,
	})
}

func (h *ContentHandler) DeleteField(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	fieldKey := strings.TrimSpace(c.Params("fieldKey"))

	if err := h.service.DeleteField(c.UserContext(), siteID, fieldKey); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func toFieldResponse(f *domain.ContentField) fieldResponse {
	return fieldResponse{
		FieldKey:  f.FieldKey,
		Value:     f.Value.Raw,
		Version:   f.Version,
		UpdatedAt: f.UpdatedAt,
	}
}

// actorFrom reads the authenticated user's ID injected by the edge proxy.
func actorFrom(c *fiber.Ctx) *string {
	actor := strings.TrimSpace(c.Get("X-User-Id"))
	if actor == "" {
		return nil
	}
	return &actor
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
