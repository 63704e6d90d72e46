package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vega-chat/chat-service/internal/domain"
	"github.com/vega-chat/chat-service/internal/repository"
	"github.com/vega-chat/chat-service/internal/security"
)

func newAuthFixture() (*AuthService, *memUserRepo, *memMessageRepo) {
	users := newMemUserRepo()
	msgs := newMemMessageRepo()
	signer := security.NewJWTSigner("test-secret", time.Hour, 0)
	// MinCost keeps the hashing fast under test
	svc := NewAuthService(users, msgs, signer, security.BcryptConfig{Cost: 4}, nil)
	return svc, users, msgs
}

func TestLogin_FirstUseCreatesAccount(t *testing.T) {
	svc, users, _ := newAuthFixture()

	res, err := svc.Login(context.Background(), "alice", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token == "" {
		t.Fatalf("expected a token")
	}
	if res.User.ID == 0 {
		t.Fatalf("expected an assigned user id")
	}

	if _, err := users.GetByUsername(context.Background(), "alice"); err != nil {
		t.Fatalf("account not created: %v", err)
	}
}

func TestLogin_WrongPasswordRejected(t *testing.T) {
	svc, _, _ := newAuthFixture()

	if _, err := svc.Login(context.Background(), "alice", "secret1"); err != nil {
		t.Fatalf("first login: %v", err)
	}

	_, err := svc.Login(context.Background(), "alice", "wrong")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_SamePasswordReauthenticates(t *testing.T) {
	svc, _, _ := newAuthFixture()

	first, err := svc.Login(context.Background(), "alice", "secret1")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := svc.Login(context.Background(), "alice", "secret1")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if first.User.ID != second.User.ID {
		t.Fatalf("expected same identity, got %d and %d", first.User.ID, second.User.ID)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc, _, _ := newAuthFixture()

	if _, err := svc.Register(context.Background(), "bob", "secret1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(context.Background(), "bob", "other12")
	if !errors.Is(err, repository.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRegister_ValidationErrors(t *testing.T) {
	svc, _, _ := newAuthFixture()

	if _, err := svc.Register(context.Background(), "", "secret1"); !errors.Is(err, domain.ErrUsernameRequired) {
		t.Fatalf("expected ErrUsernameRequired, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "carol", "x"); !errors.Is(err, domain.ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestVerifyToken_RoundTrip(t *testing.T) {
	svc, _, _ := newAuthFixture()

	res, err := svc.Login(context.Background(), "alice", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	id, username, err := svc.VerifyToken(res.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != res.User.ID {
		t.Fatalf("identity mismatch: got %d want %d", id, res.User.ID)
	}
	if username != "alice" {
		t.Fatalf("username mismatch: got %q", username)
	}
}

func TestVerifyToken_GarbageRejected(t *testing.T) {
	svc, _, _ := newAuthFixture()

	if _, _, err := svc.VerifyToken("not-a-token"); err == nil {
		t.Fatalf("expected an error for a malformed token")
	}
}

func TestProfile_ThreadIndexOnePerCounterpart(t *testing.T) {
	svc, _, msgs := newAuthFixture()

	alice, _ := svc.Login(context.Background(), "alice", "secret1")
	bob, _ := svc.Login(context.Background(), "bob", "secret2")
	carol, _ := svc.Login(context.Background(), "carol", "secret3")

	send := func(from *LoginResult, to domain.UserID, text string) {
		m, err := domain.NewPrivateMessage(from.User.Username, from.User.ID, to, text)
		if err != nil {
			t.Fatalf("build message: %v", err)
		}
		if err := msgs.Insert(context.Background(), m); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	send(alice, bob.User.ID, "hi bob")
	send(bob, alice.User.ID, "hi alice")
	send(alice, carol.User.ID, "hi carol")

	_, threads, err := svc.Profile(context.Background(), alice.User.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if len(threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(threads))
	}

	// newest counterpart first
	if threads[0].OtherID != carol.User.ID {
		t.Fatalf("expected carol thread first, got user %d", threads[0].OtherID)
	}
	if threads[1].OtherID != bob.User.ID {
		t.Fatalf("expected bob thread second, got user %d", threads[1].OtherID)
	}
	if threads[1].LastMessage == nil || threads[1].LastMessage.Content != "hi alice" {
		t.Fatalf("bob thread should carry the latest message, got %+v", threads[1].LastMessage)
	}
}

func TestUpdateProfile_UsernameConflict(t *testing.T) {
	svc, _, _ := newAuthFixture()

	alice, _ := svc.Login(context.Background(), "alice", "secret1")
	if _, err := svc.Login(context.Background(), "bob", "secret2"); err != nil {
		t.Fatalf("login bob: %v", err)
	}

	taken := "bob"
	_, err := svc.UpdateProfile(context.Background(), alice.User.ID, &taken, nil)
	if !errors.Is(err, repository.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}
