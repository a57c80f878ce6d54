package users

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/mprlab/colist/internal/database"
	"github.com/mprlab/colist/internal/domain"
)

func mustOpenDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "colist.db"), nil)
	if err != nil {
		t.Fatalf("unexpected database error: %v", err)
	}
	return db
}

func mustNewService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service
}

func TestRegisterAndAuthenticate(t *testing.T) {
	service := mustNewService(t, mustOpenDatabase(t))
	ctx := context.Background()

	user, err := service.Register(ctx, "alice", "Alice@Example.com", "password-123")
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected email to be lowercased, got %q", user.Email)
	}
	if user.PasswordHash == "password-123" {
		t.Fatalf("expected password to be hashed")
	}

	authenticated, err := service.Authenticate(ctx, "alice@example.com", "password-123")
	if err != nil {
		t.Fatalf("unexpected authenticate error: %v", err)
	}
	if authenticated.ID != user.ID {
		t.Fatalf("expected same user back")
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	service := mustNewService(t, mustOpenDatabase(t))
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "alice@example.com", "password-123"); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	_, err := service.Register(ctx, "alice2", "alice@example.com", "password-456")
	if !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	service := mustNewService(t, mustOpenDatabase(t))

	_, err := service.Authenticate(context.Background(), "ghost@example.com", "password-123")
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	service := mustNewService(t, mustOpenDatabase(t))
	ctx := context.Background()

	if _, err := service.Register(ctx, "alice", "alice@example.com", "password-123"); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	_, err := service.Authenticate(ctx, "alice@example.com", "wrong-password")
	if !domain.IsKind(err, domain.KindUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestEditProfile(t *testing.T) {
	service := mustNewService(t, mustOpenDatabase(t))
	ctx := context.Background()

	user, err := service.Register(ctx, "alice", "alice@example.com", "password-123")
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	username := "alice-renamed"
	avatar := "https://cdn.example.com/alice.png"
	updated, err := service.EditProfile(ctx, user.ID, ProfileUpdate{Username: &username, AvatarURL: &avatar})
	if err != nil {
		t.Fatalf("unexpected edit error: %v", err)
	}
	if updated.Username != "alice-renamed" || updated.AvatarURL != avatar {
		t.Fatalf("unexpected profile state: %+v", updated)
	}
}

func TestChangePassword(t *testing.T) {
	service := mustNewService(t, mustOpenDatabase(t))
	ctx := context.Background()

	user, err := service.Register(ctx, "alice", "alice@example.com", "password-123")
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	if err := service.ChangePassword(ctx, user.ID, "wrong", "password-456"); !domain.IsKind(err, domain.KindUnauthenticated) {
		t.Fatalf("expected unauthenticated on wrong current password, got %v", err)
	}
	if err := service.ChangePassword(ctx, user.ID, "password-123", "password-123"); !domain.IsKind(err, domain.KindInvalidRequest) {
		t.Fatalf("expected invalid request on unchanged password, got %v", err)
	}
	if err := service.ChangePassword(ctx, user.ID, "password-123", "password-456"); err != nil {
		t.Fatalf("unexpected change error: %v", err)
	}

	if _, err := service.Authenticate(ctx, "alice@example.com", "password-456"); err != nil {
		t.Fatalf("expected new password to authenticate: %v", err)
	}
}
