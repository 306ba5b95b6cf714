package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippet-manager/internal/apperror"
	"github.com/sakif/snippet-manager/internal/model"
	"github.com/sakif/snippet-manager/internal/service"
)

// SnippetHandler exposes snippet CRUD and search over HTTP.
//
// Every method has the auth.AuthedHandlerFunc shape: the gate has already
// verified the bearer token and hands over the caller as user.
type SnippetHandler struct {
	snippets *service.SnippetService
	logger   *slog.Logger
}

// NewSnippetHandler creates a new SnippetHandler.
func NewSnippetHandler(snippets *service.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{snippets: snippets, logger: logger}
}

// CreateSnippetResponse is the 201 body of POST /api/snippets.
type CreateSnippetResponse struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// UpdateSnippetResponse is the 200 body of PUT /api/snippets/{id}.
type UpdateSnippetResponse struct {
	Message     string    `json:"message"`
	LastUpdated time.Time `json:"last_updated"`
}

// HandleCreate saves a new snippet owned by the caller.
//
// HTTP: POST /api/snippets
// REQUEST BODY: {"title":"...", "code":"...", "language":"go", "tags":["a"], "category_id":"..."}
//
// The body must be a non-empty JSON object; "{}" and an empty body are both
// "No data provided".
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request, user *model.User) {
	fields, err := decodeObject(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(fields) == 0 {
		writeError(w, apperror.ValidationFailed("body", msgNoData))
		return
	}

	in, err := decodeInput(fields)
	if err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.snippets.Create(r.Context(), user, in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateSnippetResponse{
		ID:      snippet.ID,
		Title:   snippet.Title,
		Message: "Snippet created successfully",
	})
}

// decodeInput reads the create body. Absent keys stay at their zero value.
func decodeInput(fields map[string]json.RawMessage) (service.SnippetInput, error) {
	var in service.SnippetInput
	if _, err := field(fields, "title", &in.Title); err != nil {
		return in, err
	}
	if _, err := field(fields, "code", &in.Code); err != nil {
		return in, err
	}
	if _, err := field(fields, "language", &in.Language); err != nil {
		return in, err
	}
	if _, err := field(fields, "tags", &in.Tags); err != nil {
		return in, err
	}
	if _, err := field(fields, "category_id", &in.CategoryID); err != nil {
		return in, err
	}
	return in, nil
}

// HandleList returns the caller's snippets.
//
// HTTP: GET /api/snippets?language=go&tag=web&search=http&category_id=...
//
// Every query parameter is optional and they combine with AND.
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request, user *model.User) {
	q := r.URL.Query()
	snippets, err := h.snippets.List(r.Context(), user, service.SnippetQuery{
		Language:   q.Get("language"),
		Tag:        q.Get("tag"),
		Search:     q.Get("search"),
		CategoryID: q.Get("category_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snippets)
}

// HandleGet returns one snippet.
//
// HTTP: GET /api/snippets/{id}
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request, _ *model.User) {
	snippet, err := h.snippets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snippet)
}

// HandleUpdate applies a partial update.
//
// HTTP: PUT /api/snippets/{id}
// REQUEST BODY: any subset of {"title","code","language","tags","category_id"}
//
// Keys that are absent keep their stored value. The snippet is looked up
// before the body is read so a missing id is a 404 whatever the body says.
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request, _ *model.User) {
	id := chi.URLParam(r, "id")
	if _, err := h.snippets.GetByID(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	fields, err := decodeObject(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	patch, err := decodePatch(fields)
	if err != nil {
		writeError(w, err)
		return
	}

	snippet, err := h.snippets.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Debug("snippet patched", slog.String("id", id), slog.Int("fields", len(fields)))

	writeJSON(w, http.StatusOK, UpdateSnippetResponse{
		Message:     "Snippet updated successfully",
		LastUpdated: snippet.UpdatedAt,
	})
}

// decodePatch turns the present keys of an update body into a SnippetPatch.
func decodePatch(fields map[string]json.RawMessage) (service.SnippetPatch, error) {
	var (
		patch                 service.SnippetPatch
		title, code, language string
		tags                  []string
		category              *string
	)

	if ok, err := field(fields, "title", &title); err != nil {
		return patch, err
	} else if ok {
		patch.Title = &title
	}
	if ok, err := field(fields, "code", &code); err != nil {
		return patch, err
	} else if ok {
		patch.Code = &code
	}
	if ok, err := field(fields, "language", &language); err != nil {
		return patch, err
	} else if ok {
		patch.Language = &language
	}
	if ok, err := field(fields, "tags", &tags); err != nil {
		return patch, err
	} else if ok {
		patch.Tags = &tags
	}
	if ok, err := field(fields, "category_id", &category); err != nil {
		return patch, err
	} else if ok {
		patch.CategoryID = category
		patch.CategoryIDSet = true
	}

	return patch, nil
}

// HandleDelete removes a snippet permanently.
//
// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request, _ *model.User) {
	if err := h.snippets.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Snippet deleted successfully"})
}
