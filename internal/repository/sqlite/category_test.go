package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/snippet-manager/internal/model"
)

func TestCategoryCreateAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	list, err := db.Categories().List(ctx)
	if err != nil {
		t.Fatalf("List() on empty db error = %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("List() = %#v, want empty non-nil slice", list)
	}

	for _, c := range []*model.Category{
		{Name: "algorithms", Description: "sorting, searching"},
		{Name: "snippets without description"},
	} {
		if err := db.Categories().Create(ctx, c); err != nil {
			t.Fatalf("Create(%s) error = %v", c.Name, err)
		}
		if c.ID == "" || c.CreatedAt.IsZero() {
			t.Errorf("Create(%s) did not set ID/CreatedAt", c.Name)
		}
	}

	list, err = db.Categories().List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() returned %d categories, want 2", len(list))
	}
	if list[0].Name != "algorithms" || list[0].Description != "sorting, searching" {
		t.Errorf("first category = %+v", list[0])
	}
	if list[1].Description != "" {
		t.Errorf("second category description = %q, want empty", list[1].Description)
	}
}
