// Package clients provides typed HTTP clients for the registration
// coordinator API.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stolen-wallet-registry/registry-coordinator/api"
)

// CoordinatorClient talks to a registration coordinator over HTTP.
type CoordinatorClient struct {
	// ServerAddr is the base URL of the coordinator, without a trailing slash.
	ServerAddr string

	// HTTPClient is the client used for requests. http.DefaultClient when nil.
	HTTPClient *http.Client
}

func (c *CoordinatorClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// CreateSession starts a new registration session.
func (c *CoordinatorClient) CreateSession(ctx context.Context, req api.CreateSessionRequest) (*api.SessionResponse, error) {
	var resp api.SessionResponse
	err := c.do(ctx, http.MethodPost, c.ServerAddr+"/api/v1/sessions", req, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSession fetches the current state of a session.
func (c *CoordinatorClient) GetSession(ctx context.Context, sessionID string) (*api.SessionResponse, error) {
	var resp api.SessionResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/sessions/%s", c.ServerAddr, sessionID), nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitEvent hands an event to a session and returns its updated state. A
// rejected transition surfaces as an *APIError carrying the reason code.
func (c *CoordinatorClient) SubmitEvent(ctx context.Context, sessionID string, ev api.EventRequest) (*api.SessionResponse, error) {
	var resp api.SessionResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/api/v1/sessions/%s/events", c.ServerAddr, sessionID), ev, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteSession abandons a session.
func (c *CoordinatorClient) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/api/v1/sessions/%s", c.ServerAddr, sessionID), nil, nil)
}

// APIError is a non-2xx coordinator response.
type APIError struct {
	StatusCode int

	// Code is the machine-readable rejection reason, when the server sent one.
	Code string

	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("coordinator returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("coordinator returned %d: %s", e.StatusCode, e.Message)
}

func (c *CoordinatorClient) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("could not reach coordinator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var parsed api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil {
			apiErr.Code = parsed.Code
			apiErr.Message = parsed.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse coordinator response: %w", err)
	}
	return nil
}
