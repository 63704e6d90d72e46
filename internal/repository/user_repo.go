package repository

import (
	"context"

	"github.com/vega-chat/chat-service/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) (domain.UserID, error)
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	UpdateProfile(ctx context.Context, id domain.UserID, username *string, profileImage *string) error
	UpdateStatus(ctx context.Context, id domain.UserID, status string) error
}
