package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Each delivery attempt is bounded by this timeout; there is no cancellation
// beyond it.
const defaultSendTimeout = 10 * time.Second

const (
	HeaderSignature = "X-Bifrost-Signature"
	HeaderEvent     = "X-Bifrost-Event"
	HeaderTimestamp = "X-Bifrost-Timestamp"
)

// Request is one signed delivery attempt. Body carries the canonical payload
// bytes stored on the log row; Timestamp matches the timestamp embedded in
// the body.
type Request struct {
	URL       string
	Body      []byte
	Event     string
	Timestamp string
	Signature string
}

// Response stores attempt metadata for the delivery log.
type Response struct {
	StatusCode int
	Body       string
}

// Sender performs exactly one outbound POST per call; retrying is the
// caller's concern.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// HTTPSender delivers webhooks over HTTP with a fixed per-attempt timeout.
type HTTPSender struct {
	client *resty.Client
}

func NewHTTPSender() *HTTPSender {
	client := resty.New()
	client.SetTimeout(defaultSendTimeout)
	client.SetRetryCount(0)

	return &HTTPSender{client: client}
}

func NewHTTPSenderWithClient(client *resty.Client) (*HTTPSender, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSendTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPSender{client: client}, nil
}

func (s *HTTPSender) Send(ctx context.Context, req Request) (*Response, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("sender is not initialized")
	}

	endpoint := strings.TrimSpace(req.URL)
	if endpoint == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}
	if len(req.Body) == 0 {
		return nil, fmt.Errorf("webhook body is required")
	}

	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(HeaderSignature, req.Signature).
		SetHeader(HeaderEvent, req.Event).
		SetHeader(HeaderTimestamp, req.Timestamp).
		SetBody(req.Body).
		Post(endpoint)
	if err != nil {
		return nil, &DeliveryError{
			Message:   "webhook request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &DeliveryError{
			Message:   "webhook returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Response{
			StatusCode: statusCode,
			Body:       responseBody,
		}, nil
	}

	return nil, &DeliveryError{
		StatusCode: statusCode,
		Message:    deliveryErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func deliveryErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("receiver returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
