package model

import "time"

// User represents a registered account.
//
// Users are created by POST /api/register (username + email + password) or,
// when GitHub login is configured, on the first GitHub callback. Nothing
// updates or deletes a user afterwards.
//
// PasswordHash is the full bcrypt output and is never serialized (json:"-").
// GitHub-provisioned accounts have an empty PasswordHash, so password login
// always fails for them, and may have an empty Email (GitHub lets people hide it).
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	GitHubID     *int64    `json:"github_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
