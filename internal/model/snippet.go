// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — plain values with struct tags
// that tell encoding/json how they look on the wire.
package model

import (
	"strings"
	"time"
)

// Snippet represents a saved code snippet owned by one user.
//
// Tags are a list in Go and in JSON, but the database keeps them as a single
// comma-joined column (see JoinTags / SplitTags). A tag that itself contains
// a comma does not survive the round trip.
//
// CategoryID is a pointer because the category is optional: nil marshals to
// JSON null and is stored as SQL NULL.
type Snippet struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Code       string    `json:"code"`
	Language   string    `json:"language"`
	Tags       []string  `json:"tags"`
	CategoryID *string   `json:"category_id"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"last_updated"`
}

// JoinTags serializes a tag list for storage: ["a","b"] → "a,b".
// An empty (or nil) list becomes the empty string.
func JoinTags(tags []string) string {
	return strings.Join(tags, ",")
}

// SplitTags is the inverse of JoinTags. The empty string becomes an empty,
// non-nil list so that JSON output is [] rather than null.
func SplitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
