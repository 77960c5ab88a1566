package httpapi

import (
	"context"
	"strings"
	"testing"
	"time"

	"stockledger/backend/internal/domain"
	"stockledger/backend/internal/service"
	"stockledger/backend/internal/store"
	"stockledger/backend/internal/store/memory"
)

func newTestAuthManager(t *testing.T) (*AuthManager, store.Repository) {
	t.Helper()

	repo := memory.New()
	svc := service.New(repo, nil, time.Minute, 150)
	manager, err := NewAuthManager("test-secret-key-0123", time.Hour, svc, repo)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	return manager, repo
}

func TestNewAuthManagerRejectsShortSecret(t *testing.T) {
	repo := memory.New()
	svc := service.New(repo, nil, time.Minute, 150)

	if _, err := NewAuthManager("short", time.Hour, svc, repo); err == nil {
		t.Fatalf("expected error for weak secret")
	}
}

func TestRegisterStoresPasswordHash(t *testing.T) {
	manager, repo := newTestAuthManager(t)

	user, err := manager.Register(context.Background(), domain.RegisterRequest{
		Email:    "Shop@Example.com",
		Password: "hunter2-hunter2",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Email != "shop@example.com" {
		t.Fatalf("expected lowercased email, got %q", user.Email)
	}

	stored, err := repo.GetUserByEmail(context.Background(), "shop@example.com")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if stored.PasswordHash == "hunter2-hunter2" {
		t.Fatalf("expected password to be hashed")
	}
	if !strings.HasPrefix(stored.PasswordHash, "$2") {
		t.Fatalf("expected bcrypt hash, got %s", stored.PasswordHash)
	}
}

func TestRegisterRejectsWeakInput(t *testing.T) {
	manager, _ := newTestAuthManager(t)

	_, err := manager.Register(context.Background(), domain.RegisterRequest{
		Email:    "not-an-email",
		Password: "long-enough-pass",
	})
	if err == nil {
		t.Fatalf("expected error for invalid email")
	}

	_, err = manager.Register(context.Background(), domain.RegisterRequest{
		Email:    "shop@example.com",
		Password: "short",
	})
	if err == nil {
		t.Fatalf("expected error for short password")
	}
}

func TestLoginAndParseTokenRoundTrip(t *testing.T) {
	manager, _ := newTestAuthManager(t)

	registered, err := manager.Register(context.Background(), domain.RegisterRequest{
		Email:    "shop@example.com",
		Password: "hunter2-hunter2",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Email:    "shop@example.com",
		Password: "hunter2-hunter2",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.UserID != registered.ID {
		t.Fatalf("expected actor user id %d, got %d", registered.ID, actor.UserID)
	}
	if actor.Email != "shop@example.com" {
		t.Fatalf("unexpected actor email %q", actor.Email)
	}
}

func TestLoginWrongPasswordFails(t *testing.T) {
	manager, _ := newTestAuthManager(t)

	if _, err := manager.Register(context.Background(), domain.RegisterRequest{
		Email:    "shop@example.com",
		Password: "hunter2-hunter2",
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Email:    "shop@example.com",
		Password: "wrong-password",
	})
	if err == nil {
		t.Fatalf("expected login to fail")
	}

	_, err = manager.Login(context.Background(), domain.LoginRequest{
		Email:    "nobody@example.com",
		Password: "hunter2-hunter2",
	})
	if err == nil {
		t.Fatalf("expected login for unknown email to fail")
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	manager, _ := newTestAuthManager(t)

	otherRepo := memory.New()
	otherSvc := service.New(otherRepo, nil, time.Minute, 150)
	other, err := NewAuthManager("another-secret-key-456", time.Hour, otherSvc, otherRepo)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	if _, err := other.Register(context.Background(), domain.RegisterRequest{
		Email:    "shop@example.com",
		Password: "hunter2-hunter2",
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	resp, err := other.Login(context.Background(), domain.LoginRequest{
		Email:    "shop@example.com",
		Password: "hunter2-hunter2",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}
