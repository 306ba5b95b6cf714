package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/snippet-manager/internal/apperror"
	"github.com/sakif/snippet-manager/internal/model"
	"github.com/sakif/snippet-manager/internal/repository"
)

// compile-time check that *DB implements repository.SnippetRepository
var _ repository.SnippetRepository = (*DB)(nil)

const snippetColumns = `id, title, code, language, tags, user_id, category_id, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSnippet reads one row selected with snippetColumns.
// Tags come back as the comma-joined string and are split here;
// category_id is nullable.
func scanSnippet(row rowScanner) (*model.Snippet, error) {
	var (
		s          model.Snippet
		tags       string
		categoryID sql.NullString
	)
	if err := row.Scan(
		&s.ID, &s.Title, &s.Code, &s.Language, &tags,
		&s.UserID, &categoryID, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.Tags = model.SplitTags(tags)
	if categoryID.Valid {
		id := categoryID.String
		s.CategoryID = &id
	}
	return &s, nil
}

func categoryArg(id *string) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return nullString(*id)
}

// Create inserts a new snippet. It assigns the ID (xid: 20 URL-safe chars,
// time-sortable) and both timestamps on the caller's struct.
func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	snippet.ID = xid.New().String()

	now := time.Now().UTC()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now
	if snippet.Tags == nil {
		snippet.Tags = []string{}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO snippets (`+snippetColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snippet.ID,
		snippet.Title,
		snippet.Code,
		snippet.Language,
		model.JoinTags(snippet.Tags),
		snippet.UserID,
		categoryArg(snippet.CategoryID),
		snippet.CreatedAt,
		snippet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating snippet: %w", err)
	}

	return nil
}

// GetByID retrieves a single snippet by its ID.
// sql.ErrNoRows is translated to apperror.NotFound so the handler can answer 404.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE id = ?`,
		id,
	)

	snippet, err := scanSnippet(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}

	return snippet, nil
}

// List returns the snippets matching filter, in creation order.
//
// QUERY BUILDING:
// Each non-empty filter field appends one condition and its argument; the
// conditions are joined with AND. Values always travel as ? parameters,
// never spliced into the SQL text.
//
//	Language   → language = ?                         (exact, case-sensitive)
//	Tag        → tags LIKE '%tag%'                    (substring of "a,b,c")
//	Search     → LOWER(title) LIKE … OR LOWER(code) LIKE …
//	CategoryID → category_id = ?
func (db *DB) List(ctx context.Context, filter repository.SnippetFilter) ([]model.Snippet, error) {
	var (
		conds []string
		args  []any
	)

	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Language != "" {
		conds = append(conds, "language = ?")
		args = append(args, filter.Language)
	}
	if filter.Tag != "" {
		conds = append(conds, `tags LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(filter.Tag))
	}
	if filter.Search != "" {
		pattern := containsPattern(strings.ToLower(filter.Search))
		conds = append(conds, `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(code) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if filter.CategoryID != "" {
		conds = append(conds, "category_id = ?")
		args = append(args, filter.CategoryID)
	}

	query := `SELECT ` + snippetColumns + ` FROM snippets`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at, id`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	defer rows.Close()

	snippets := make([]model.Snippet, 0)
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		snippets = append(snippets, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}

	return snippets, nil
}

// Update writes every mutable column of snippet and refreshes updated_at.
// id, user_id and created_at never change. Zero rows affected means the
// snippet does not exist.
func (db *DB) Update(ctx context.Context, snippet *model.Snippet) error {
	snippet.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE snippets
		 SET title = ?, code = ?, language = ?, tags = ?, category_id = ?, updated_at = ?
		 WHERE id = ?`,
		snippet.Title,
		snippet.Code,
		snippet.Language,
		model.JoinTags(snippet.Tags),
		categoryArg(snippet.CategoryID),
		snippet.UpdatedAt,
		snippet.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("snippet", snippet.ID)
	}

	return nil
}

// Delete removes a snippet permanently. Same RowsAffected check as Update.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM snippets WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("snippet", id)
	}

	return nil
}
