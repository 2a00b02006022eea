// Package services contains the application services of the TimeGrid
// client: authentication bootstrap around the encrypted session cache, and
// entity CRUD routed either directly to the backend or through the offline
// queue.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/timegrid/internal/client/api"
	"github.com/dmitrijs2005/timegrid/internal/client/models"
	"github.com/dmitrijs2005/timegrid/internal/client/session"
	"github.com/dmitrijs2005/timegrid/internal/logging"
)

// AuthService owns the authentication lifecycle.
//
// Contract:
//   - Login: authenticate online, cache the session encrypted at rest.
//   - Bootstrap: restore a usable session at startup without any network.
//   - Logout: drop the cached session.
//   - Invalidate: drop the session when the backend rejects our token
//     (wired as the sync engine's auth-error hook).
type AuthService struct {
	api      api.Client
	sessions *session.Manager
	log      logging.Logger
	now      func() time.Time
}

func NewAuthService(apiClient api.Client, sessions *session.Manager, log logging.Logger) *AuthService {
	return &AuthService{api: apiClient, sessions: sessions, log: log, now: time.Now}
}

// Login authenticates against the backend and replaces the cached session
// wholesale. The session expiry is read from the access token's exp claim.
func (a *AuthService) Login(ctx context.Context, email, password string) (*models.CachedSession, error) {
	result, err := a.api.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}

	s := &models.CachedSession{
		User:         result.User,
		Token:        result.Token,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    api.TokenExpiry(result.Token, a.now()),
	}

	if err := a.sessions.Save(ctx, s); err != nil {
		// the login itself succeeded; a cache write failure only costs
		// offline restarts
		a.log.Warn(ctx, "failed to cache session", "error", err)
	}

	a.api.SetToken(s.Token)
	return s, nil
}

// Bootstrap restores the cached session if one exists and is still valid.
// Returns nil without error when there is nothing usable; the caller then
// requires an online login.
func (a *AuthService) Bootstrap(ctx context.Context) (*models.CachedSession, error) {
	s, err := a.sessions.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("session restore error: %w", err)
	}
	if !a.sessions.IsValid(s) {
		if s != nil {
			a.log.Info(ctx, "cached session expired", "expires_at", s.ExpiresAt)
		}
		return nil, nil
	}

	a.api.SetToken(s.Token)
	return s, nil
}

// Logout clears the cached session and the in-memory token.
func (a *AuthService) Logout(ctx context.Context) error {
	a.api.SetToken("")
	if err := a.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("logout error: %w", err)
	}
	return nil
}

// Invalidate is Logout for the unauthenticated-mid-drain case; failures are
// logged, not returned, because it runs from inside the sync engine.
func (a *AuthService) Invalidate(ctx context.Context) {
	if err := a.Logout(ctx); err != nil {
		a.log.Warn(ctx, "failed to invalidate session", "error", err)
	}
}
