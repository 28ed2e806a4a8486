package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyxmakerx/stream/internal/apperror"
)

// UserRepository defines the data access contract for directory entries.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	Upsert(ctx context.Context, user *User) error
	List(ctx context.Context, offset, limit int) ([]User, int, error)
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// FindByID retrieves a user by ID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT id, email, display_name, created_at FROM users WHERE id = ?`

	user := &User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return user, nil
}

// Upsert inserts a user or updates the email and display name of an
// existing one.
func (r *userRepository) Upsert(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, email, display_name, created_at)
	          VALUES (?, ?, ?, ?)
	          ON DUPLICATE KEY UPDATE email = VALUES(email), display_name = VALUES(display_name)`

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Email, user.DisplayName, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// List returns a page of users ordered by ID and the total count.
func (r *userRepository) List(ctx context.Context, offset, limit int) ([]User, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, display_name, created_at FROM users ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, total, nil
}
