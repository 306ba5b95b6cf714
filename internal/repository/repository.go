// Package repository declares the storage contracts the service layer depends on.
// The sqlite subpackage is the production implementation; service tests use
// in-memory fakes that satisfy the same interfaces.
package repository

import (
	"context"

	"github.com/sakif/snippet-manager/internal/model"
)

// SnippetFilter narrows a snippet listing. Zero-valued fields are ignored;
// the set fields are combined with AND.
type SnippetFilter struct {
	UserID     string // owner scope, always set by the service
	Language   string // exact, case-sensitive match
	Tag        string // substring of the comma-joined tag column
	Search     string // case-insensitive substring of title OR code
	CategoryID string // exact match
}

type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	List(ctx context.Context, filter SnippetFilter) ([]model.Snippet, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, id string) error
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpsertGitHub(ctx context.Context, user *model.User) error
}

type CategoryRepository interface {
	Create(ctx context.Context, category *model.Category) error
	List(ctx context.Context) ([]model.Category, error)
}
