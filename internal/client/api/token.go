package api

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultSessionTTL is used when the access token carries no usable exp
// claim; the cached session then expires conservatively soon.
const defaultSessionTTL = 24 * time.Hour

// TokenExpiry extracts the expiry from the access token's exp claim. The
// signature is not verified here, the server already authenticated us; we only
// need the timestamp to know when the cached session stops being usable
// offline. Falls back to now+defaultSessionTTL for opaque tokens.
func TokenExpiry(token string, now time.Time) time.Time {
	fallback := now.Add(defaultSessionTTL)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return fallback
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	return exp.Time
}
