package users

import (
	"context"
	"errors"
	"testing"

	"github.com/keyxmakerx/stream/internal/apperror"
)

// --- Mock Repository ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id int64) (*User, error)
	upsertFn   func(ctx context.Context, user *User) error
	listFn     func(ctx context.Context, offset, limit int) ([]User, int, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) Upsert(ctx context.Context, user *User) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) List(ctx context.Context, offset, limit int) ([]User, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, offset, limit)
	}
	return nil, 0, nil
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

func TestDisplayName(t *testing.T) {
	repo := &mockUserRepo{findByIDFn: func(_ context.Context, id int64) (*User, error) {
		switch id {
		case 1:
			return &User{ID: 1, Email: "admin@example.com", DisplayName: "Admin"}, nil
		case 2:
			return &User{ID: 2, Email: "editor@example.com"}, nil
		}
		return nil, apperror.NewNotFound("user not found")
	}}
	svc := NewUserService(repo)
	ctx := context.Background()

	if name, _ := svc.DisplayName(ctx, 1); name != "Admin" {
		t.Errorf("expected Admin, got %q", name)
	}
	if name, _ := svc.DisplayName(ctx, 2); name != "editor@example.com" {
		t.Errorf("expected email fallback, got %q", name)
	}
	_, err := svc.DisplayName(ctx, 3)
	assertAppError(t, err, 404)
}

func TestGet_SystemUserNeverQueried(t *testing.T) {
	repo := &mockUserRepo{findByIDFn: func(context.Context, int64) (*User, error) {
		t.Error("repository should not be called for user 0")
		return nil, nil
	}}
	_, err := NewUserService(repo).Get(context.Background(), 0)
	assertAppError(t, err, 404)
}

func TestGet_RepoFailure(t *testing.T) {
	repo := &mockUserRepo{findByIDFn: func(context.Context, int64) (*User, error) {
		return nil, errors.New("connection refused")
	}}
	_, err := NewUserService(repo).Email(context.Background(), 5)
	assertAppError(t, err, 500)
}

func TestUpsert(t *testing.T) {
	var saved *User
	repo := &mockUserRepo{upsertFn: func(_ context.Context, u *User) error {
		saved = u
		return nil
	}}
	svc := NewUserService(repo)

	user, err := svc.Upsert(context.Background(), 4, UpsertRequest{Email: " ops@example.com ", DisplayName: " Ops "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved != user || user.Email != "ops@example.com" || user.DisplayName != "Ops" {
		t.Errorf("unexpected user %+v", user)
	}
}

func TestUpsert_Validation(t *testing.T) {
	svc := NewUserService(&mockUserRepo{})
	ctx := context.Background()

	_, err := svc.Upsert(ctx, 0, UpsertRequest{Email: "a@example.com"})
	assertAppError(t, err, 422)

	_, err = svc.Upsert(ctx, 1, UpsertRequest{Email: "not-an-address"})
	assertAppError(t, err, 422)

	_, err = svc.Upsert(ctx, 1, UpsertRequest{Email: "Ops <ops@example.com>"})
	assertAppError(t, err, 422)
}

func TestList_ClampsPaging(t *testing.T) {
	var gotOffset, gotLimit int
	repo := &mockUserRepo{listFn: func(_ context.Context, offset, limit int) ([]User, int, error) {
		gotOffset, gotLimit = offset, limit
		return nil, 0, nil
	}}
	users, _, err := NewUserService(repo).List(context.Background(), 3, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotOffset != 100 || gotLimit != 50 {
		t.Errorf("offset=%d limit=%d, want 100/50", gotOffset, gotLimit)
	}
	if users == nil {
		t.Error("expected empty slice, not nil")
	}
}
