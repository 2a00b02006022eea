// Package api is the client for the TimeGrid backend. The backend itself is
// an external collaborator; this package owns only the call surface the sync
// core needs and the mapping of transport/HTTP failures onto the shared
// sentinel error taxonomy.
package api

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/timegrid/internal/client/models"
)

// LoginResult is a successful authentication response.
type LoginResult struct {
	User         models.User `json:"user"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
}

// Client is the backend call surface. Errors returned by implementations
// are classified with the common sentinels (errors.Is):
//
//	common.ErrValidation   — the payload was rejected (HTTP 400/422)
//	common.ErrUnauthorized — auth invalid (HTTP 401/419)
//	common.ErrRateLimited  — HTTP 429
//	common.ErrServer       — HTTP 5xx
//	common.ErrUnavailable  — transport failure, timeouts
type Client interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Ping(ctx context.Context) error

	CreateEntity(ctx context.Context, entityType models.EntityType, payload json.RawMessage) (json.RawMessage, error)
	UpdateEntity(ctx context.Context, entityType models.EntityType, id string, payload json.RawMessage) (json.RawMessage, error)
	DeleteEntity(ctx context.Context, entityType models.EntityType, id string) error
	ListEntities(ctx context.Context, entityType models.EntityType) ([]json.RawMessage, error)

	SetToken(token string)
	Close() error
}
