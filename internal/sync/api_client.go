package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/servly-app/servlygo/internal/config"
	"github.com/servly-app/servlygo/internal/models"
)

// errAlreadyProcessed is the error code the server returns when it has
// already handled a request with the same offline_id
const errAlreadyProcessed = "already_processed"

// APIClient talks to the marketplace REST API. Every call returns an
// Outcome instead of a bare error so callers can distinguish retryable
// failures from rejections without inspecting transport details.
type APIClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	healthPath string
}

// envelope is the standard response wrapper: {"data": ...} on success,
// {"error": "..."} on failure. Dedup conflicts carry both.
type envelope struct {
	Data  *models.Booking `json:"data"`
	Error string          `json:"error,omitempty"`
}

// NewAPIClient creates a marketplace API client
func NewAPIClient(cfg config.RemoteConfig) *APIClient {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &APIClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		baseURL:    cfg.BaseURL,
		token:      cfg.APIToken,
		healthPath: cfg.HealthPath,
	}
}

// SetToken swaps the bearer token after a login
func (c *APIClient) SetToken(token string) {
	c.token = token
}

// CreateBooking posts a new booking. The offline identifier rides along so
// the server can deduplicate a replayed request.
func (c *APIClient) CreateBooking(ctx context.Context, payload models.CreateBookingPayload, offlineID string) Outcome {
	body := map[string]interface{}{
		"serviceId":   payload.ServiceID,
		"providerId":  payload.ProviderID,
		"scheduledAt": payload.ScheduledAt.UTC().Format(time.RFC3339),
		"offline_id":  offlineID,
	}
	if payload.Notes != "" {
		body["notes"] = payload.Notes
	}
	if payload.Price > 0 {
		body["price"] = payload.Price
	}
	return c.do(ctx, http.MethodPost, "/bookings", body)
}

// UpdateBooking puts changed fields on an existing booking
func (c *APIClient) UpdateBooking(ctx context.Context, bookingID string, payload models.UpdateBookingPayload) Outcome {
	body := map[string]interface{}{}
	if payload.ScheduledAt != nil {
		body["scheduledAt"] = payload.ScheduledAt.UTC().Format(time.RFC3339)
	}
	if payload.Notes != nil {
		body["notes"] = *payload.Notes
	}
	return c.do(ctx, http.MethodPut, "/bookings/"+bookingID, body)
}

// TransitionBooking posts a lifecycle action (accept, start, complete,
// cancel). The server replies success or failure only; the caller marks
// the transition locally.
func (c *APIClient) TransitionBooking(ctx context.Context, bookingID string, action models.BookingAction, reason string) Outcome {
	var body map[string]interface{}
	if reason != "" {
		body = map[string]interface{}{"reason": reason}
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/bookings/%s/%s", bookingID, action), body)
}

// RescheduleBooking posts a new scheduled time. The other party is always
// notified.
func (c *APIClient) RescheduleBooking(ctx context.Context, bookingID string, payload models.ReschedulePayload) Outcome {
	body := map[string]interface{}{
		"scheduledAt":      payload.ScheduledAt.UTC().Format(time.RFC3339),
		"rescheduledBy":    payload.RescheduledBy,
		"notifyOtherParty": true,
	}
	return c.do(ctx, http.MethodPost, "/bookings/"+bookingID+"/reschedule", body)
}

// FetchProviders pulls the provider catalog for local caching
func (c *APIClient) FetchProviders(ctx context.Context) ([]models.Provider, error) {
	var providers []models.Provider
	if err := c.getJSON(ctx, "/providers", &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

// FetchServices pulls the service catalog for local caching
func (c *APIClient) FetchServices(ctx context.Context) ([]models.Service, error) {
	var services []models.Service
	if err := c.getJSON(ctx, "/services", &services); err != nil {
		return nil, err
	}
	return services, nil
}

// UpdatePreferences writes provider preferences. Never queued: the caller
// must be online, and a failure is surfaced directly.
func (c *APIClient) UpdatePreferences(ctx context.Context, providerID string, prefs map[string]interface{}) error {
	out := c.do(ctx, http.MethodPut, "/providers/"+providerID+"/preferences", prefs)
	if out.Kind == OutcomeSynced || out.Kind == OutcomeAlreadySynced {
		return nil
	}
	return out.Err
}

// getJSON fetches a read-only resource into out
func (c *APIClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: HTTP %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", path, err)
	}
	return nil
}

// Ping probes the live health endpoint. Used by the connectivity monitor
// instead of trusting a cached online flag.
func (c *APIClient) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < 500
}

// do sends one request and classifies the response into an Outcome
func (c *APIClient) do(ctx context.Context, method, path string, body interface{}) Outcome {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return Outcome{Kind: OutcomePermanent, Err: fmt.Errorf("failed to marshal request body: %w", err)}
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Outcome{Kind: OutcomePermanent, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection drops are retryable
		return Outcome{Kind: OutcomeTransient, Err: fmt.Errorf("%s %s: %w", method, path, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{Kind: OutcomeTransient, Err: fmt.Errorf("%s %s: reading response: %w", method, path, err)}
	}

	var env envelope
	if len(respBody) > 0 {
		// A non-JSON body from a proxy or load balancer is not a verdict
		if err := json.Unmarshal(respBody, &env); err != nil && resp.StatusCode < 400 {
			return Outcome{Kind: OutcomeTransient, Err: fmt.Errorf("%s %s: malformed response: %w", method, path, err)}
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Outcome{Kind: OutcomeSynced, Booking: env.Data}

	case resp.StatusCode == http.StatusConflict && env.Error == errAlreadyProcessed:
		// Duplicate delivery from a prior partial drain; the server echoes
		// the entity it created the first time
		return Outcome{Kind: OutcomeAlreadySynced, Booking: env.Data}

	case resp.StatusCode >= 500:
		return Outcome{Kind: OutcomeTransient, Err: fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, truncate(env.Error, respBody))}

	default:
		return Outcome{Kind: OutcomePermanent, Err: fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, truncate(env.Error, respBody))}
	}
}

// truncate picks the structured error if present, else a bounded slice of
// the raw body
func truncate(errMsg string, body []byte) string {
	if errMsg != "" {
		return errMsg
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
