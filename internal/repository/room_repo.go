package repository

import (
	"context"

	"github.com/vega-chat/chat-service/internal/domain"
)

type RoomRepository interface {
	// Create fills ID and CreatedAt; duplicate name returns ErrAlreadyExists.
	Create(ctx context.Context, room *domain.Room) error
	GetByName(ctx context.Context, name string) (*domain.Room, error)
	// List returns all rooms with the general room pinned first.
	List(ctx context.Context) ([]domain.Room, error)
	// EnsureExists lazily creates the room on first join. Race-safe: concurrent
	// calls for the same name end up with exactly one row.
	EnsureExists(ctx context.Context, name string, createdBy string) (*domain.Room, error)
	// AddMember is an idempotent set-add into membership history.
	AddMember(ctx context.Context, roomID string, userID domain.UserID) error
	Members(ctx context.Context, roomID string) ([]domain.UserID, error)
}
