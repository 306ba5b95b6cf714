package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/snippet-manager/internal/apperror"
	"github.com/sakif/snippet-manager/internal/model"
)

// Messages the gate sends back with a 401.
const (
	MsgTokenMissing = "Token is missing"
	MsgTokenExpired = "Token has expired"
	MsgTokenInvalid = "Token is invalid"
)

// UserLookup resolves the user_id carried by a token to a user record.
// A not-found error makes the token invalid; any other error is a 500.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// AuthedHandlerFunc is a handler that runs only for an authenticated caller.
// The gate passes the resolved user as an explicit argument instead of
// hiding it in the request context.
type AuthedHandlerFunc func(w http.ResponseWriter, r *http.Request, user *model.User)

// Gate enforces bearer-token authentication on protected routes.
//
// REQUEST FLOW:
//
//	Authorization: Bearer <jwt>
//	      │
//	      ├─ header missing / not "Bearer <x>"  → 401 Token is missing
//	      ├─ signature ok but exp in the past   → 401 Token has expired
//	      ├─ any other verification failure     → 401 Token is invalid
//	      ├─ user_id does not resolve to a user → 401 Token is invalid
//	      ├─ user lookup fails (store down)     → 500 internal_error
//	      └─ ok → next(w, r, user)
type Gate struct {
	tokens *TokenService
	users  UserLookup
	logger *slog.Logger
}

// NewGate creates a Gate that verifies tokens with tokens and loads users
// through users.
func NewGate(tokens *TokenService, users UserLookup, logger *slog.Logger) *Gate {
	return &Gate{tokens: tokens, users: users, logger: logger}
}

// Require wraps next so it only runs with a valid token.
//
// Usage in the router:
//
//	r.Get("/api/snippets", gate.Require(snippetHandler.List))
func (g *Gate) Require(next AuthedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeUnauthorized(w, MsgTokenMissing)
			return
		}

		userID, err := g.tokens.Validate(raw)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				writeUnauthorized(w, MsgTokenExpired)
				return
			}
			g.logger.Debug("rejected bearer token", slog.String("error", err.Error()))
			writeUnauthorized(w, MsgTokenInvalid)
			return
		}

		user, err := g.users.GetUserByID(r.Context(), userID)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			g.logger.Warn("token for unknown user", slog.String("userID", userID))
			writeUnauthorized(w, MsgTokenInvalid)
			return
		case err != nil:
			g.logger.Error("resolving token user",
				slog.String("userID", userID),
				slog.String("error", err.Error()),
			)
			writeErrorBody(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		next(w, r, user)
	}
}

// bearerToken extracts <token> from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively; an empty token is not a token.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.Contains(token, " ") {
		return "", false
	}
	return token, true
}

// writeUnauthorized writes the same {"error","message"} body the handler
// package uses. The handler package imports auth, so the gate cannot reuse
// its helpers.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeErrorBody(w, http.StatusUnauthorized, "unauthorized", message)
}

func writeErrorBody(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   kind,
		"message": message,
	})
}
