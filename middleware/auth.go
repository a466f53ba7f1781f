// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/auth"
	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/models"
)

type contextKey int

const (
	actorKey contextKey = iota
	deviceKey
)

// BearerToken returns the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// ActorFrom returns the actor stored by RequireActor.
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	a, ok := ctx.Value(actorKey).(models.Actor)
	return a, ok
}

// DeviceFrom returns the voting device stored by RequireDevice.
func DeviceFrom(ctx context.Context) (models.VotingDevice, bool) {
	d, ok := ctx.Value(deviceKey).(models.VotingDevice)
	return d, ok
}

// WithActor returns a copy of ctx carrying a.
func WithActor(ctx context.Context, a models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// WithDevice returns a copy of ctx carrying d.
func WithDevice(ctx context.Context, d models.VotingDevice) context.Context {
	return context.WithValue(ctx, deviceKey, d)
}

// Sessions resolves web session tokens into actors.
type Sessions struct {
	db     db.Querier
	tokens *auth.Signer
}

func NewSessions(q db.Querier, tokens *auth.Signer) *Sessions {
	return &Sessions{db: q, tokens: tokens}
}

// RequireActor authenticates the session token and loads the actor's
// capabilities once for the whole request.
func (s *Sessions) RequireActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			WriteError(w, apperr.Unauthorized("Missing session token"))
			return
		}

		userID, err := s.tokens.ParseSessionToken(token)
		if err != nil {
			WriteError(w, apperr.Unauthorized("Invalid or expired session"))
			return
		}

		actor, err := auth.LoadActor(r.Context(), s.db, userID)
		if errors.Is(err, auth.ErrUnknownUser) {
			WriteError(w, apperr.Unauthorized("Unknown user"))
			return
		}
		if err != nil {
			WriteError(w, err)
			return
		}

		next(w, r.WithContext(WithActor(r.Context(), actor)))
	}
}

// DeviceAuthenticator resolves a device bearer token.
type DeviceAuthenticator interface {
	AuthenticateDevice(ctx context.Context, token string) (models.VotingDevice, error)
}

// RequireDevice authenticates a voting terminal by its bearer token.
func RequireDevice(devices DeviceAuthenticator, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := devices.AuthenticateDevice(r.Context(), BearerToken(r))
		if err != nil {
			WriteError(w, err)
			return
		}
		next(w, r.WithContext(WithDevice(r.Context(), d)))
	}
}
