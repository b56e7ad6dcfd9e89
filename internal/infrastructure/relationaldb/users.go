package relationaldb

import (
	"context"
	"errors"
	"fmt"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/infrastructure/dbpool"
)

const userColumns = `id, username, email, password_hash, role, created_at`

// CreateUser inserts a user. A taken username or email yields a
// DuplicateEntityError.
func (r *Repository) CreateUser(ctx context.Context, u *entities.User) error {
	if u.Username == "" || u.Email == "" || u.PasswordHash == "" {
		return domainErr.NewValidationError("user", "username, email and password hash are required")
	}
	if !u.Role.IsValid() {
		return domainErr.NewValidationError("role", "invalid role %d", int(u.Role))
	}
	if u.ID == "" {
		u.ID = generateUUID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = timeNow().UTC()
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.pool.Exec(ctx, query, u.ID, u.Username, u.Email, u.PasswordHash, int(u.Role), formatTime(u.CreatedAt))
	if err != nil {
		var dup *domainErr.DuplicateEntityError
		if errors.As(err, &dup) {
			return &domainErr.DuplicateEntityError{
				Kind:   "user",
				Detail: fmt.Sprintf("username %q or email %q is already registered", u.Username, u.Email),
				Err:    err,
			}
		}
		return fmt.Errorf("saving user: %w", err)
	}
	return nil
}

// FindUserByID finds a user by ID.
func (r *Repository) FindUserByID(ctx context.Context, id string) (*entities.User, error) {
	return r.findUser(ctx, "id", id)
}

// FindUserByUsername finds a user by username.
func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*entities.User, error) {
	return r.findUser(ctx, "username", username)
}

func (r *Repository) findUser(ctx context.Context, column, value string) (*entities.User, error) {
	row, err := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	if row == nil {
		return nil, domainErr.NewNotFound("user", value)
	}
	return scanUser(row)
}

// ListUsers lists users ordered by username.
func (r *Repository) ListUsers(ctx context.Context, limit, offset int) ([]entities.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY username ASC LIMIT ? OFFSET ?`,
		clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}

	result := make([]entities.User, 0, len(rows))
	for _, row := range rows {
		u, err := scanUser(row)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}
	return result, nil
}

// UpdateUserRole changes a user's role.
func (r *Repository) UpdateUserRole(ctx context.Context, id string, role entities.Role) error {
	if !role.IsValid() {
		return domainErr.NewValidationError("role", "invalid role %d", int(role))
	}
	n, err := r.pool.Exec(ctx, `UPDATE users SET role = ? WHERE id = ?`, int(role), id)
	if err != nil {
		return fmt.Errorf("updating user role: %w", err)
	}
	if n == 0 {
		return domainErr.NewNotFound("user", id)
	}
	return nil
}

// CountUsers returns the number of registered users.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	row, err := r.pool.QueryRow(ctx, `SELECT COUNT(*) AS n FROM users`)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return int(asInt64(row["n"])), nil
}

func scanUser(row dbpool.Row) (*entities.User, error) {
	u := &entities.User{
		ID:           asString(row["id"]),
		Username:     asString(row["username"]),
		Email:        asString(row["email"]),
		PasswordHash: asString(row["password_hash"]),
		Role:         entities.Role(asInt64(row["role"])),
	}
	created, err := asTime(row["created_at"])
	if err != nil {
		return nil, err
	}
	u.CreatedAt = created
	return u, nil
}
