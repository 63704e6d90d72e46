package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vega-chat/chat-service/internal/domain"
	"github.com/vega-chat/chat-service/internal/repository"
	"github.com/vega-chat/chat-service/internal/security"
)

type LoginResult struct {
	User  *domain.User
	Token string
}

type AuthService struct {
	users      repository.UserRepository
	messages   repository.MessageRepository
	jwt        *security.JWTSigner
	passPolicy security.BcryptConfig
	now        func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	messages repository.MessageRepository,
	jwt *security.JWTSigner,
	passPolicy security.BcryptConfig,
	now func() time.Time,
) *AuthService {
	if now == nil {
		now = time.Now
	}

	return &AuthService{
		users:      users,
		messages:   messages,
		jwt:        jwt,
		passPolicy: passPolicy,
		now:        now,
	}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (*LoginResult, error) {
	hash, err := security.HashPassword(password, &s.passPolicy)
	if err != nil {
		return nil, err
	}

	u, err := domain.NewUser(username, hash, s.now())
	if err != nil {
		return nil, err
	}

	id, err := s.users.Create(ctx, u)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, repository.ErrAlreadyExists
		}
		slog.Error("auth.register.create failed", slog.Any("err", err))
		return nil, err
	}
	u.ID = id

	return s.issue(u)
}

// Login authenticates by username+password. A first login creates the
// account on the fly; an existing account requires a matching password.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.Register(ctx, username, password)
		}
		slog.Error("auth.login.getByUsername failed", slog.Any("err", err))
		return nil, err
	}

	if err := security.ComparePassword(u.PasswordHash, password); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	return s.issue(u)
}

// Profile returns the user together with the derived private-thread index:
// one entry per counterpart, annotated with the most recent message.
func (s *AuthService) Profile(ctx context.Context, userID domain.UserID) (*domain.User, []domain.ThreadPreview, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, domain.ErrUserNotFound
		}
		return nil, nil, err
	}

	msgs, err := s.messages.PrivateInvolving(ctx, userID, 200)
	if err != nil {
		slog.Error("auth.profile.privateInvolving failed", slog.Any("err", err))
		return u, nil, nil
	}

	// msgs are newest first, so the first hit per counterpart is the latest
	seen := make(map[domain.UserID]bool)
	var threads []domain.ThreadPreview
	for i := range msgs {
		m := msgs[i]
		other := m.SenderID
		if other == userID && m.Recipient != nil {
			other = *m.Recipient
		}
		if other == userID || seen[other] {
			continue
		}
		seen[other] = true
		threads = append(threads, domain.ThreadPreview{OtherID: other, LastMessage: &m})
	}

	return u, threads, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID domain.UserID, username *string, profileImage *string) (*domain.User, error) {
	if err := s.users.UpdateProfile(ctx, userID, username, profileImage); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, repository.ErrAlreadyExists
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}

	return s.users.GetByID(ctx, userID)
}

// VerifyToken parses an access token into the identity it names.
// Rejection here happens before any core logic runs.
func (s *AuthService) VerifyToken(token string) (domain.UserID, string, error) {
	claims, err := s.jwt.ParseAndValidate(token)
	if err != nil {
		return 0, "", err
	}
	id, err := security.SubjectAsUserID(claims)
	if err != nil {
		return 0, "", err
	}

	return id, claims.Username, nil
}

func (s *AuthService) AccessTTL() time.Duration { return s.jwt.TTL() }

func (s *AuthService) issue(u *domain.User) (*LoginResult, error) {
	token, err := s.jwt.SignAccessToken(u.ID, u.Username, s.now())
	if err != nil {
		return nil, err
	}

	return &LoginResult{User: u, Token: token}, nil
}
