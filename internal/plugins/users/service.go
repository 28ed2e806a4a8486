package users

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/keyxmakerx/stream/internal/apperror"
	"github.com/keyxmakerx/stream/internal/sanitize"
)

// UserService defines the business logic contract for the user directory.
// DisplayName and Email make it usable wherever a record's user ID must be
// turned into something a person can read or mail.
type UserService interface {
	Get(ctx context.Context, id int64) (*User, error)
	Upsert(ctx context.Context, id int64, req UpsertRequest) (*User, error)
	List(ctx context.Context, page, perPage int) ([]User, int, error)

	DisplayName(ctx context.Context, id int64) (string, error)
	Email(ctx context.Context, id int64) (string, error)
}

// userService implements UserService.
type userService struct {
	repo UserRepository
	now  func() time.Time
}

// NewUserService creates a new user service.
func NewUserService(repo UserRepository) UserService {
	return &userService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Get returns one user. ID 0 is the anonymous/system actor and never exists.
func (s *userService) Get(ctx context.Context, id int64) (*User, error) {
	if id < 1 {
		return nil, apperror.NewNotFound("user not found")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if _, ok := err.(*apperror.AppError); ok {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}
	return user, nil
}

// Upsert validates and stores a directory entry.
func (s *userService) Upsert(ctx context.Context, id int64, req UpsertRequest) (*User, error) {
	if id < 1 {
		return nil, apperror.NewValidation("user ID must be positive")
	}
	email := strings.TrimSpace(req.Email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, apperror.NewValidation("a valid email address is required")
	}
	name := sanitize.PlainText(req.DisplayName)
	if len(name) > 255 {
		return nil, apperror.NewValidation("display name must be at most 255 characters")
	}

	user := &User{ID: id, Email: email, DisplayName: name, CreatedAt: s.now()}
	if err := s.repo.Upsert(ctx, user); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("upserting user: %w", err))
	}

	slog.Info("user directory entry saved", slog.Int64("user_id", id))
	return user, nil
}

// List returns a page of users and the total count.
func (s *userService) List(ctx context.Context, page, perPage int) ([]User, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}
	users, total, err := s.repo.List(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return nil, 0, apperror.NewInternal(fmt.Errorf("listing users: %w", err))
	}
	if users == nil {
		users = []User{}
	}
	return users, total, nil
}

// DisplayName returns the user's display name, or their email when no
// name was given.
func (s *userService) DisplayName(ctx context.Context, id int64) (string, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if user.DisplayName != "" {
		return user.DisplayName, nil
	}
	return user.Email, nil
}

// Email returns the user's email address.
func (s *userService) Email(ctx context.Context, id int64) (string, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}
