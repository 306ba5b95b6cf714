package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/snippet-manager/internal/model"
	"github.com/sakif/snippet-manager/internal/service"
)

// CategoryHandler exposes the global category list.
type CategoryHandler struct {
	categories *service.CategoryService
	logger     *slog.Logger
}

func NewCategoryHandler(categories *service.CategoryService, logger *slog.Logger) *CategoryHandler {
	return &CategoryHandler{categories: categories, logger: logger}
}

type createCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateCategoryResponse is the 201 body of POST /api/categories.
type CreateCategoryResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// HandleCreate adds a category.
//
// HTTP: POST /api/categories
// REQUEST BODY: {"name":"Algorithms","description":"optional"}
func (h *CategoryHandler) HandleCreate(w http.ResponseWriter, r *http.Request, user *model.User) {
	var req createCategoryRequest
	if err := decodeInto(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	category, err := h.categories.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Debug("category created by user", slog.String("userID", user.ID))

	writeJSON(w, http.StatusCreated, CreateCategoryResponse{
		ID:      category.ID,
		Name:    category.Name,
		Message: "Category created successfully",
	})
}

// HandleList returns every category.
//
// HTTP: GET /api/categories
func (h *CategoryHandler) HandleList(w http.ResponseWriter, r *http.Request, _ *model.User) {
	categories, err := h.categories.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, categories)
}
