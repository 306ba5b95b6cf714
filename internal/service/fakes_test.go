package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/snippet-manager/internal/apperror"
	"github.com/sakif/snippet-manager/internal/model"
	"github.com/sakif/snippet-manager/internal/repository"
)

// =========================================================================
// IN-MEMORY FAKES
// =========================================================================
//
// Each fake implements one repository interface over maps/slices. They copy
// on the way in and out so a test cannot mutate "stored" state by accident,
// and they assign IDs/timestamps the way the SQLite store does.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- snippets ------------------------------------------------------------

type fakeSnippetRepo struct {
	order    []string
	snippets map[string]*model.Snippet
	nextID   int
	clock    time.Time

	// set to simulate a storage failure
	listErr   error
	createErr error
	updates   int
}

func newFakeSnippetRepo() *fakeSnippetRepo {
	return &fakeSnippetRepo{
		snippets: make(map[string]*model.Snippet),
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick advances the fake clock so every write gets a distinct timestamp.
func (f *fakeSnippetRepo) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeSnippetRepo) Create(_ context.Context, s *model.Snippet) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	s.ID = fmt.Sprintf("snip-%d", f.nextID)
	now := f.tick()
	s.CreatedAt, s.UpdatedAt = now, now

	stored := *s
	f.snippets[s.ID] = &stored
	f.order = append(f.order, s.ID)
	return nil
}

func (f *fakeSnippetRepo) GetByID(_ context.Context, id string) (*model.Snippet, error) {
	s, ok := f.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	out := *s
	return &out, nil
}

func (f *fakeSnippetRepo) List(_ context.Context, filter repository.SnippetFilter) ([]model.Snippet, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Snippet, 0)
	for _, id := range f.order {
		s, ok := f.snippets[id]
		if !ok || s.UserID != filter.UserID {
			continue
		}
		if filter.Language != "" && s.Language != filter.Language {
			continue
		}
		if filter.Tag != "" && !strings.Contains(model.JoinTags(s.Tags), filter.Tag) {
			continue
		}
		if filter.Search != "" {
			q := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(s.Title), q) && !strings.Contains(strings.ToLower(s.Code), q) {
				continue
			}
		}
		if filter.CategoryID != "" && (s.CategoryID == nil || *s.CategoryID != filter.CategoryID) {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeSnippetRepo) Update(_ context.Context, s *model.Snippet) error {
	if _, ok := f.snippets[s.ID]; !ok {
		return apperror.NotFound("snippet", s.ID)
	}
	f.updates++
	s.UpdatedAt = f.tick()
	stored := *s
	f.snippets[s.ID] = &stored
	return nil
}

func (f *fakeSnippetRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.snippets[id]; !ok {
		return apperror.NotFound("snippet", id)
	}
	delete(f.snippets, id)
	return nil
}

// --- users ---------------------------------------------------------------

type fakeUserRepo struct {
	users  map[string]*model.User
	nextID int

	// set to simulate failures
	lookupErr error
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return apperror.Conflict("username", "Username already exists")
		}
	}
	f.nextID++
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	u.CreatedAt = time.Now().UTC()
	stored := *u
	f.users[u.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	out := *u
	return &out, nil
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, u := range f.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (f *fakeUserRepo) EmailExists(_ context.Context, email string) (bool, error) {
	for _, u := range f.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserRepo) UpsertGitHub(ctx context.Context, u *model.User) error {
	for _, existing := range f.users {
		if existing.GitHubID != nil && *existing.GitHubID == *u.GitHubID {
			if u.Email != "" {
				existing.Email = u.Email
			}
			*u = *existing
			return nil
		}
	}
	return f.Create(ctx, u)
}

// --- categories ----------------------------------------------------------

type fakeCategoryRepo struct {
	categories []model.Category
	createErr  error
}

func (f *fakeCategoryRepo) Create(_ context.Context, c *model.Category) error {
	if f.createErr != nil {
		return f.createErr
	}
	c.ID = fmt.Sprintf("cat-%d", len(f.categories)+1)
	c.CreatedAt = time.Now().UTC()
	f.categories = append(f.categories, *c)
	return nil
}

func (f *fakeCategoryRepo) List(_ context.Context) ([]model.Category, error) {
	return append([]model.Category{}, f.categories...), nil
}
