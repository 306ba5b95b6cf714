// Package auth provides bearer-token issuance and validation, password
// hashing, the access-control gate, and the optional GitHub OAuth provider.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Client registers (POST /api/register) — password is bcrypt-hashed
//  2. Client logs in (POST /api/login) — server verifies the hash and returns a JWT
//  3. Client sends "Authorization: Bearer <jwt>" on every protected request
//  4. The Gate validates the JWT, loads the user, and hands it to the handler
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:    {"alg":"HS256","typ":"JWT"}
//	- Payload:   {"user_id":"cv37rs3pp9olc6atsptg","exp":1234567890,"iat":...,"iss":"snippet-manager"}
//	- Signature: HMAC-SHA256(header+"."+payload, secret)
//
// Tokens live for TokenLifetime and cannot be revoked or refreshed.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenLifetime is how long an issued token stays valid.
const TokenLifetime = 24 * time.Hour

const issuer = "snippet-manager"

// MinSecretLength is the shortest HMAC secret NewTokenService accepts.
const MinSecretLength = 16

// ErrTokenExpired is returned by Validate for a well-signed token past its exp.
// The gate uses it to tell "expired" apart from "invalid".
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService handles JWT creation and validation with a single HMAC secret.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// claims is the JWT payload: the user id under "user_id" plus the
// registered exp/iat/iss claims.
type claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Generate creates and signs a token for userID that expires after TokenLifetime.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, TokenLifetime)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// Tests use a negative duration to mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	now := s.now()

	c := claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string and returns the user_id it carries.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid for our secret
//   - Algorithm is HS256 (a token claiming "none" or RS256 is rejected)
//   - Issuer matches
//   - exp is present and in the future
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	if c.UserID == "" {
		return "", fmt.Errorf("auth: token has no user_id")
	}

	return c.UserID, nil
}
