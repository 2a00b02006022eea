package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/dmitrijs2005/timegrid/internal/common"
)

const requestTimeout = 12 * time.Second

// statusAuthTimeout is the non-standard 419 some frameworks use for an
// expired authentication session. Treated the same as 401.
const statusAuthTimeout = 419

// HTTPClient implements Client over the backend's JSON API. Every response
// body is an envelope {data, error}; non-2xx statuses are mapped onto the
// sentinel taxonomy by mapError.
type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// SetToken sets the bearer token attached to subsequent requests.
func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *HTTPClient) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// envelope is the backend's uniform response shape.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// transport failure is authoritative over any connectivity signal
		return nil, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", common.ErrUnavailable, err)
	}

	var env envelope
	if len(raw) > 0 {
		// an undecodable body on a non-2xx status still maps by status below
		_ = json.Unmarshal(raw, &env)
	}

	if err := mapError(resp.StatusCode, env.Error); err != nil {
		return nil, err
	}

	return env.Data, nil
}

// mapError classifies an HTTP status into the shared sentinel taxonomy.
func mapError(status int, message string) error {
	if status >= 200 && status < 300 {
		return nil
	}
	if message == "" {
		message = http.StatusText(status)
	}

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", common.ErrValidation, message)
	case status == http.StatusUnauthorized || status == statusAuthTimeout || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", common.ErrUnauthorized, message)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", common.ErrRateLimited, message)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, message)
	case status >= 500:
		return fmt.Errorf("%w: %s (status %d)", common.ErrServer, message, status)
	default:
		return fmt.Errorf("unexpected status %d: %s", status, message)
	}
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	data, err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var result LoginResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}

	c.SetToken(result.Token)
	return &result, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err
}

func entityPath(entityType models.EntityType) string {
	// backend routes are the plural of the entity type
	return "/" + string(entityType) + "s"
}

func (c *HTTPClient) CreateEntity(ctx context.Context, entityType models.EntityType, payload json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, entityPath(entityType), payload)
}

func (c *HTTPClient) UpdateEntity(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, entityPath(entityType)+"/"+id, payload)
}

func (c *HTTPClient) DeleteEntity(ctx context.Context, entityType models.EntityType, id string) error {
	_, err := c.do(ctx, http.MethodDelete, entityPath(entityType)+"/"+id, nil)
	return err
}

func (c *HTTPClient) ListEntities(ctx context.Context, entityType models.EntityType) ([]json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodGet, entityPath(entityType), nil)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if len(data) > 0 {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to decode %s list: %w", entityType, err)
		}
	}
	return items, nil
}
