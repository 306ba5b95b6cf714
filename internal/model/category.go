package model

import "time"

// Category groups snippets. Categories are global: every authenticated user
// sees the same list, and there is no owner column.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}
