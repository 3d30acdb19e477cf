package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database: openTestDatabase(t),
		Clock:    func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestRegisterAndAuthenticate(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "Ada", "Ada@Example.com", "correct-horse")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Role != "USER" {
		t.Fatalf("expected default role USER, got %q", user.Role)
	}
	if user.PasswordHash == "correct-horse" {
		t.Fatal("password must not be stored in the clear")
	}

	authenticated, err := service.Authenticate(ctx, "ada@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if authenticated.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, authenticated.ID)
	}

	if _, err := service.Authenticate(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := service.Authenticate(ctx, "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "Ada", "ada@example.com", "pw-one-two"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := service.Register(ctx, "Imposter", "ADA@example.com", "pw-three"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAuthenticateRejectsSuspendedAccount(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "Ada", "ada@example.com", "pw-one-two")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := service.SetSuspended(ctx, user.ID, true); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if _, err := service.Authenticate(ctx, "ada@example.com", "pw-one-two"); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "Ada", "ada@example.com", "pw-one-two")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	updated, err := service.UpdateProfile(ctx, user.ID, ProfileUpdate{Name: "Ada Lovelace"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name != "Ada Lovelace" {
		t.Fatalf("expected updated name, got %q", updated.Name)
	}

	if _, err := service.UpdateProfile(ctx, user.ID, ProfileUpdate{}); !errors.Is(err, ErrNoFields) {
		t.Fatalf("expected ErrNoFields, got %v", err)
	}

	if _, err := service.UpdateProfile(ctx, user.ID, ProfileUpdate{NewPassword: "fresh-secret"}); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword without current password, got %v", err)
	}

	if _, err := service.UpdateProfile(ctx, user.ID, ProfileUpdate{
		CurrentPassword: "pw-one-two",
		NewPassword:     "fresh-secret",
	}); err != nil {
		t.Fatalf("password change failed: %v", err)
	}
	if _, err := service.Authenticate(ctx, "ada@example.com", "fresh-secret"); err != nil {
		t.Fatalf("authenticate with new password failed: %v", err)
	}
}

func TestUpdateProfileRejectsTakenEmail(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, "Ada", "ada@example.com", "pw-one-two"); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	other, err := service.Register(ctx, "Grace", "grace@example.com", "pw-three")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if _, err := service.UpdateProfile(ctx, other.ID, ProfileUpdate{Email: "ada@example.com"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestDeleteAccountRequiresPassword(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "Ada", "ada@example.com", "pw-one-two")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	// The cascade statements touch the todo tables, which this package does
	// not own; create minimal stand-ins.
	for _, stmt := range []string{
		"CREATE TABLE todos (id TEXT PRIMARY KEY, owner_id TEXT)",
		"CREATE TABLE todo_collaborators (todo_id TEXT, user_id TEXT)",
		"CREATE TABLE todo_comments (id TEXT PRIMARY KEY, todo_id TEXT)",
	} {
		if err := service.db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create table: %v", err)
		}
	}

	if err := service.DeleteAccount(ctx, user.ID, "wrong"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
	if err := service.DeleteAccount(ctx, user.ID, "pw-one-two"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := service.Get(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListPaginates(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		email := fmt.Sprintf("user-%d@example.com", i)
		if _, err := service.Register(ctx, "User", email, "pw-one-two"); err != nil {
			t.Fatalf("register failed: %v", err)
		}
	}

	first, err := service.List(ctx, 1, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(first.Users) != 2 || !first.HasMore || first.TotalCount != 5 {
		t.Fatalf("unexpected first page: %d users, hasMore=%v, total=%d",
			len(first.Users), first.HasMore, first.TotalCount)
	}

	last, err := service.List(ctx, 3, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(last.Users) != 1 || last.HasMore {
		t.Fatalf("unexpected last page: %d users, hasMore=%v", len(last.Users), last.HasMore)
	}

	if _, err := service.List(ctx, 0, 2); err == nil {
		t.Fatal("expected error for invalid page")
	}
}

func TestSetRole(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, "Ada", "ada@example.com", "pw-one-two")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	promoted, err := service.SetRole(ctx, user.ID, "ADMIN")
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	if promoted.Role != "ADMIN" {
		t.Fatalf("expected ADMIN role, got %q", promoted.Role)
	}

	if _, err := service.SetRole(ctx, "missing-user", "ADMIN"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
