package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/snippet-manager/internal/apperror"
	"github.com/sakif/snippet-manager/internal/model"
	"github.com/sakif/snippet-manager/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the user store. Obtain one with DB.Users().
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, username, email, password_hash, github_id, created_at`

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		email    sql.NullString
		githubID sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Username, &email, &u.PasswordHash, &githubID, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Email = email.String
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	return &u, nil
}

// translateUserInsertErr turns UNIQUE violations into conflict errors the
// handler reports as 400. The service checks for duplicates first; this
// covers two registrations racing each other.
func translateUserInsertErr(err error, user *model.User) error {
	switch {
	case isUniqueViolation(err, "users.username"):
		return apperror.Conflict("username", "Username already exists")
	case isUniqueViolation(err, "users.email"):
		return apperror.Conflict("email", "Email already exists")
	default:
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}
}

// Create inserts a new user, filling in ID and CreatedAt.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = time.Now().UTC()

	var githubID sql.NullInt64
	if user.GitHubID != nil {
		githubID = sql.NullInt64{Int64: *user.GitHubID, Valid: true}
	}

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		nullString(user.Email),
		user.PasswordHash,
		githubID,
		user.CreatedAt,
	)
	if err != nil {
		return translateUserInsertErr(err, user)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

// GetByUsername retrieves a user by exact username.
func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user by username %q: %w", username, err)
	}
	return user, nil
}

// EmailExists reports whether any user already registered email.
func (u *UserDB) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int
	err := u.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE email = ?`, email,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking email: %w", err)
	}
	return count > 0, nil
}

// UpsertGitHub finds the user linked to user.GitHubID or creates one.
//
// An existing account keeps its ID, username and created_at; only the email
// is refreshed in case it changed on GitHub, and kept as is if another
// account already owns the new one. On return the caller's struct holds the
// canonical row.
//
// A new account whose login is taken by a password account gets the username
// "<login>-gh<id>"; one whose email is taken is created without an email.
func (u *UserDB) UpsertGitHub(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return fmt.Errorf("sqlite: upserting GitHub user: github id is required")
	}

	existing, err := scanUser(u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, *user.GitHubID))
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", *user.GitHubID, err)
	}

	if existing == nil {
		return u.createGitHub(ctx, user)
	}

	if user.Email != "" && user.Email != existing.Email {
		_, err = u.conn.ExecContext(ctx,
			`UPDATE users SET email = ? WHERE id = ?`,
			user.Email, existing.ID,
		)
		switch {
		case isUniqueViolation(err, "users.email"):
		case err != nil:
			return translateUserInsertErr(err, existing)
		default:
			existing.Email = user.Email
		}
	}

	*user = *existing
	return nil
}

// createGitHub inserts a first-time GitHub user, stepping around username and
// email collisions with existing accounts.
func (u *UserDB) createGitHub(ctx context.Context, user *model.User) error {
	suffixed := false
	for {
		err := u.Create(ctx, user)

		var conflict *apperror.AppError
		if !errors.As(err, &conflict) || !errors.Is(err, apperror.ErrConflict) {
			return err
		}

		switch {
		case conflict.Field == "username" && !suffixed:
			user.Username = fmt.Sprintf("%s-gh%d", user.Username, *user.GitHubID)
			suffixed = true
		case conflict.Field == "email" && user.Email != "":
			user.Email = ""
		default:
			return err
		}
	}
}
