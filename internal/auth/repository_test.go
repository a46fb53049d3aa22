package auth_test

import (
	"errors"
	"testing"

	"codecollab/internal/auth"
	"codecollab/internal/testhelpers"
)

func TestUserRepositoryRoundtrip(t *testing.T) {
	repo := auth.NewUserRepository(testhelpers.SetupTestDB(t))

	user := &auth.User{Name: "Ada", Email: "ada@example.com", PasswordHash: "hash"}
	if err := repo.CreateUser(user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.ID == 0 {
		t.Fatalf("expected assigned ID")
	}

	byEmail, err := repo.GetUserByEmail("ada@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.Name != "Ada" {
		t.Fatalf("unexpected user: %#v", byEmail)
	}

	byID, err := repo.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if byID.Email != "ada@example.com" {
		t.Fatalf("unexpected user: %#v", byID)
	}
}

func TestUserRepositoryNotFound(t *testing.T) {
	repo := auth.NewUserRepository(testhelpers.SetupTestDB(t))

	if _, err := repo.GetUserByEmail("nobody@example.com"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := repo.GetUserByID(99); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserRepositoryDuplicateEmail(t *testing.T) {
	repo := auth.NewUserRepository(testhelpers.SetupTestDB(t))

	if err := repo.CreateUser(&auth.User{Name: "Ada", Email: "ada@example.com", PasswordHash: "h"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := repo.CreateUser(&auth.User{Name: "Eve", Email: "ada@example.com", PasswordHash: "h"}); err == nil {
		t.Fatalf("expected unique constraint violation")
	}
}
