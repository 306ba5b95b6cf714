package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/snippet-manager/internal/model"
	"github.com/sakif/snippet-manager/internal/repository"
)

var _ repository.CategoryRepository = (*CategoryDB)(nil)

// CategoryDB is the category store. Obtain one with DB.Categories().
type CategoryDB struct {
	conn *sql.DB
}

func (c *CategoryDB) Create(ctx context.Context, category *model.Category) error {
	category.ID = xid.New().String()
	category.CreatedAt = time.Now().UTC()

	_, err := c.conn.ExecContext(ctx,
		`INSERT INTO categories (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		category.ID,
		category.Name,
		category.Description,
		category.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating category: %w", err)
	}
	return nil
}

// List returns every category in creation order.
func (c *CategoryDB) List(ctx context.Context) ([]model.Category, error) {
	rows, err := c.conn.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM categories ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing categories: %w", err)
	}
	defer rows.Close()

	categories := make([]model.Category, 0)
	for rows.Next() {
		var cat model.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Description, &cat.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning category row: %w", err)
		}
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating categories: %w", err)
	}

	return categories, nil
}
