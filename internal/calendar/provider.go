// Package calendar integrates the external calendar the salon staff live in.
// Every operation is best-effort: bookings stay durable even when the
// calendar is down.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Event struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Timeline    string    `json:"timeline"`
}

type Provider interface {
	CreateEvent(ctx context.Context, event Event) (string, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

type Config struct {
	BaseURL  string
	APIToken string
	Timeline string
}

// NoOpProvider is used when no calendar backend is configured.
type NoOpProvider struct{}

func (NoOpProvider) CreateEvent(ctx context.Context, event Event) (string, error) { return "", nil }
func (NoOpProvider) DeleteEvent(ctx context.Context, eventID string) error       { return nil }

type HTTPProvider struct {
	cfg    Config
	client *http.Client
}

func NewHTTP(cfg Config) *HTTPProvider {
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type eventResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *HTTPProvider) CreateEvent(ctx context.Context, event Event) (string, error) {
	if event.Timeline == "" {
		event.Timeline = p.cfg.Timeline
	}

	body, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/events", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return "", fmt.Errorf("calendar request failed with status %d", resp.StatusCode)
		}
		message := strings.TrimSpace(apiErr.Error.Message)
		if message == "" {
			message = "calendar_request_failed"
		}
		return "", errors.New(message)
	}

	var created eventResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("calendar_response_invalid")
	}
	return created.ID, nil
}

func (p *HTTPProvider) DeleteEvent(ctx context.Context, eventID string) error {
	if strings.TrimSpace(eventID) == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.cfg.BaseURL+"/v1/events/"+eventID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("calendar delete failed with status %d", resp.StatusCode)
	}
	return nil
}
