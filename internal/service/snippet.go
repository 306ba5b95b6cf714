// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, not *sqlite.DB, so tests pass
// in-memory fakes (see fakes_test.go) and the service never imports SQL.
//
// Services return apperror values (ValidationFailed, NotFound, ...), never
// HTTP status codes. The handler translates error kinds to statuses.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/snippet-manager/internal/apperror"
	"github.com/sakif/snippet-manager/internal/model"
	"github.com/sakif/snippet-manager/internal/repository"
)

// Validation limits, counted in characters (runes), not bytes.
const (
	MaxTitleLength    = 100
	MaxLanguageLength = 50
)

// SnippetInput carries the fields of a new snippet.
type SnippetInput struct {
	Title      string
	Code       string
	Language   string
	Tags       []string
	CategoryID *string
}

// SnippetPatch carries a partial update. A nil field means "key absent from
// the request, keep the stored value".
//
// CategoryID needs a separate presence flag because null is a meaningful
// value for it: {"category_id": null} clears the category.
type SnippetPatch struct {
	Title         *string
	Code          *string
	Language      *string
	Tags          *[]string
	CategoryID    *string
	CategoryIDSet bool
}

// SnippetQuery holds the optional list filters a caller can supply.
// The owner is passed separately so callers cannot widen the scope.
type SnippetQuery struct {
	Language   string
	Tag        string
	Search     string
	CategoryID string
}

// SnippetService handles business logic for code snippets.
type SnippetService struct {
	repo   repository.SnippetRepository
	logger *slog.Logger
}

// NewSnippetService creates a new SnippetService.
func NewSnippetService(repo repository.SnippetRepository, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:   repo,
		logger: logger,
	}
}

// normalizeSnippet trims title, code and language in place.
func normalizeSnippet(s *model.Snippet) {
	s.Title = strings.TrimSpace(s.Title)
	s.Code = strings.TrimSpace(s.Code)
	s.Language = strings.TrimSpace(s.Language)
}

// ValidateSnippet checks the field rules on an already-trimmed snippet and
// returns the first violation. The order is fixed:
//
//  1. title empty
//  2. code empty
//  3. title longer than MaxTitleLength
//  4. language longer than MaxLanguageLength
func ValidateSnippet(s *model.Snippet) error {
	if s.Title == "" {
		return apperror.ValidationFailed("title", "Title is required")
	}
	if s.Code == "" {
		return apperror.ValidationFailed("code", "Code is required")
	}
	if utf8.RuneCountInString(s.Title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("Title must be %d characters or less", MaxTitleLength))
	}
	if utf8.RuneCountInString(s.Language) > MaxLanguageLength {
		return apperror.ValidationFailed("language",
			fmt.Sprintf("Language must be %d characters or less", MaxLanguageLength))
	}
	return nil
}

// Create validates and saves a new snippet owned by owner.
//
// The category id is stored as given, even if no such category exists.
func (s *SnippetService) Create(ctx context.Context, owner *model.User, in SnippetInput) (*model.Snippet, error) {
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	snippet := &model.Snippet{
		Title:      in.Title,
		Code:       in.Code,
		Language:   in.Language,
		Tags:       tags,
		CategoryID: in.CategoryID,
		UserID:     owner.ID,
	}
	normalizeSnippet(snippet)
	if err := ValidateSnippet(snippet); err != nil {
		return nil, err
	}

	// The repository assigns ID, CreatedAt and UpdatedAt.
	if err := s.repo.Create(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("userID", owner.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("userID", owner.ID),
	)

	return snippet, nil
}

// List returns the owner's snippets that match every non-empty filter in q,
// in creation order.
func (s *SnippetService) List(ctx context.Context, owner *model.User, q SnippetQuery) ([]model.Snippet, error) {
	snippets, err := s.repo.List(ctx, repository.SnippetFilter{
		UserID:     owner.ID,
		Language:   q.Language,
		Tag:        q.Tag,
		Search:     q.Search,
		CategoryID: q.CategoryID,
	})
	if err != nil {
		s.logger.Error("failed to list snippets",
			slog.String("userID", owner.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing snippets: %w", err)
	}

	return snippets, nil
}

// GetByID retrieves a snippet by its ID.
// Returns apperror.ErrNotFound if the snippet doesn't exist.
func (s *SnippetService) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.NotFound("snippet", id)
	}

	// NotFound is a normal outcome here, so it is returned without logging.
	return s.repo.GetByID(ctx, id)
}

// Update applies a partial change to an existing snippet.
//
// STRATEGY: fetch, merge, re-validate, save.
// Only fields present in patch overwrite the stored ones. The merged record
// goes through the same validation as Create, and nothing is written if it
// fails. The repository refreshes UpdatedAt on every save, even when patch
// is empty.
func (s *SnippetService) Update(ctx context.Context, id string, patch SnippetPatch) (*model.Snippet, error) {
	snippet, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// === MERGE ===
	if patch.Title != nil {
		snippet.Title = *patch.Title
	}
	if patch.Code != nil {
		snippet.Code = *patch.Code
	}
	if patch.Language != nil {
		snippet.Language = *patch.Language
	}
	if patch.Tags != nil {
		snippet.Tags = *patch.Tags
		if snippet.Tags == nil {
			snippet.Tags = []string{}
		}
	}
	if patch.CategoryIDSet {
		snippet.CategoryID = patch.CategoryID
	}

	// === VALIDATE THE MERGED RECORD ===
	normalizeSnippet(snippet)
	if err := ValidateSnippet(snippet); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, snippet); err != nil {
		s.logger.Error("failed to update snippet",
			slog.String("id", snippet.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	s.logger.Info("snippet updated", slog.String("id", snippet.ID))

	return snippet, nil
}

// Delete removes a snippet by its ID.
// Returns apperror.ErrNotFound if the snippet doesn't exist.
func (s *SnippetService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.NotFound("snippet", id)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("snippet deleted", slog.String("id", id))
	return nil
}
