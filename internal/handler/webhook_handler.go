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

const defaultLogListLimit = 50

type WebhookService interface {
	Logs(ctx context.Context, siteID string, limit int) ([]domain.WebhookLog, error)
	Log(ctx context.Context, siteID, logID string) (*domain.WebhookLog, error)
	Retrigger(ctx context.Context, siteID, logID string) (string, error)
	TestFire(ctx context.Context, siteID string) (string, error)
}

type WebhookHandler struct {
	service WebhookService
}

func NewWebhookHandler(service WebhookService) (*WebhookHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("webhook service is required")
	}
	return &WebhookHandler{service: service}, nil
}

func RegisterWebhookRoutes(router fiber.Router, service WebhookService) error {
	h, err := NewWebhookHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/sites/:siteId/webhooks/logs", h.ListLogs)
	v1.Get("/sites/:siteId/webhooks/logs/:logId", h.GetLog)
	v1.Post("/sites/:siteId/webhooks/logs/:logId/retrigger", h.Retrigger)
	v1.Post("/sites/:siteId/webhooks/test", h.TestFire)

	return nil
}

type webhookLogResponse struct {
	ID            string          `json:"id"`
	Event         string          `json:"event"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastAttempt   *time.Time      `json:"lastAttempt,omitempty"`
	ResponseCode  *int            `json:"responseCode,omitempty"`
	ErrorMessage  *string         `json:"errorMessage,omitempty"`
	NextAttemptAt *time.Time      `json:"nextAttemptAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func (h *WebhookHandler) ListLogs(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	limit := c.QueryInt("limit", defaultLogListLimit)

	logs, err := h.service.Logs(c.UserContext(), siteID, limit)
	if err != nil {
		return toHTTPError(err)
	}

	out := make([]webhookLogResponse, 0, len(logs))
	for i := range logs {
		out = append(out, toWebhookLogResponse(&logs[i]))
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (h *WebhookHandler) GetLog(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	logID := strings.TrimSpace(c.Params("logId"))

	log, err := h.service.Log(c.UserContext(), siteID, logID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toWebhookLogResponse(log))
}

func (h *WebhookHandler) Retrigger(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))
	logID := strings.TrimSpace(c.Params("logId"))

	newID, err := h.service.Retrigger(c.UserContext(), siteID, logID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"logId": newID,
	})
}

// TestFire queues a marked test event against the site's endpoint.
func (h *WebhookHandler) TestFire(c *fiber.Ctx) error {
	siteID := strings.TrimSpace(c.Params("siteId"))

	logID, err := h.service.TestFire(c.UserContext(), siteID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"logId": logID,
	})
}

func toWebhookLogResponse(l *domain.WebhookLog) webhookLogResponse {
	return webhookLogResponse{
		ID:            l.ID,
		Event:         l.Event.String(),
		Payload:       json.RawMessage(l.Payload),
		Status:        l.Status.String(),
		Attempts:      l.Attempts,
		LastAttempt:   l.LastAttempt,
		ResponseCode:  l.ResponseCode,
		ErrorMessage:  l.ErrorMessage,
		NextAttemptAt: l.NextAttemptAt,
		CreatedAt:     l.CreatedAt,
	}
}
