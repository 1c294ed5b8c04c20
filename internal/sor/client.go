// Package sor is the HTTP client for the clinic's system of record: the
// booking platform that owns appointments and the one every slot mutation
// must eventually be reconciled with.
package sor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clinicops/scheduling-engine/pkg/logging"
)

const (
	defaultTimeout = 15 * time.Second

	headerIdempotencyKey = "Idempotency-Key"
)

// ErrRejected marks a 4xx response from the system of record: the request is
// malformed or permanently unacceptable, so retrying it verbatim is
// pointless.
var ErrRejected = errors.New("sor: request rejected")

// Client wraps the system-of-record REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *logging.Logger
}

// NewClient constructs a client. The token is sent as a bearer credential on
// every request.
func NewClient(baseURL, token string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		logger:     logger,
	}
}

// WithHTTPClient overrides the underlying HTTP client, for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

type bookedSlot struct {
	DayOfWeek int    `json:"day_of_week"`
	Time      string `json:"time"`
}

// BookedSlots returns the subset of the given weekly slots that carry an
// appointment for the provider.
func (c *Client) BookedSlots(ctx context.Context, providerID string, slots []bookedSlot) ([]bookedSlot, error) {
	path := fmt.Sprintf("/api/v1/providers/%s/bookings/check", url.PathEscape(providerID))

	req := struct {
		Slots []bookedSlot `json:"slots"`
	}{Slots: slots}
	var resp struct {
		Booked []bookedSlot `json:"booked"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, "", req, &resp); err != nil {
		return nil, fmt.Errorf("check bookings: %w", err)
	}
	return resp.Booked, nil
}

// CompletedAppointments returns the provider's lifetime completed-appointment
// count.
func (c *Client) CompletedAppointments(ctx context.Context, providerID string) (int, error) {
	path := fmt.Sprintf("/api/v1/providers/%s/appointments/completed-count", url.PathEscape(providerID))

	var resp struct {
		Count int `json:"count"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return 0, fmt.Errorf("completed count: %w", err)
	}
	return resp.Count, nil
}

type providerPerformance struct {
	ProviderID            string  `json:"provider_id"`
	ConversionRate        float64 `json:"conversion_rate"`
	AvgTicketNormalized   float64 `json:"avg_ticket_normalized"`
	CompletedAppointments int     `json:"completed_appointments"`
}

// ProviderPerformance returns the per-provider performance inputs for a
// score recompute, covering the whole active population.
func (c *Client) ProviderPerformance(ctx context.Context) ([]providerPerformance, error) {
	var resp struct {
		Providers []providerPerformance `json:"providers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/providers/performance", "", nil, &resp); err != nil {
		return nil, fmt.Errorf("provider performance: %w", err)
	}
	return resp.Providers, nil
}

// PushEvent delivers one scheduling event. The idempotency key makes redelivery
// after a crashed sweep safe; the system of record deduplicates on it.
func (c *Client) PushEvent(ctx context.Context, idempotencyKey, eventType string, payload json.RawMessage) error {
	req := struct {
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
	}{EventType: eventType, Payload: payload}

	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/scheduling/events", idempotencyKey, req, nil); err != nil {
		return fmt.Errorf("push event %s: %w", eventType, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	endpoint := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("system of record non-2xx response", "status", resp.StatusCode, "path", path, "body", msg)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, msg)
		}
		return fmt.Errorf("system of record returned %d: %s", resp.StatusCode, msg)
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
