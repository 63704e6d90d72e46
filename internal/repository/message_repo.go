package repository

import (
	"context"

	"github.com/vega-chat/chat-service/internal/domain"
)

type MessageRepository interface {
	// Insert fills ID and CreatedAt as assigned by the store.
	Insert(ctx context.Context, m *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)

	// History queries take a raw `before` cursor: a message id (resolved to
	// that message's created_at) or an RFC3339 timestamp; empty means latest.
	// Results are chronological (oldest first), at most limit entries.
	RoomHistory(ctx context.Context, room, before string, limit int) ([]domain.Message, error)
	PrivateHistory(ctx context.Context, a, b domain.UserID, before string, limit int) ([]domain.Message, error)
	// PrivateInvolving returns recent private messages where userID is sender
	// or recipient, newest first; feeds the derived thread index.
	PrivateInvolving(ctx context.Context, userID domain.UserID, limit int) ([]domain.Message, error)
	Search(ctx context.Context, query string, limit int) ([]domain.Message, error)

	// MarkRead adds userID to read_by if absent. Returns true when the set
	// changed; (false, nil) for the idempotent no-op.
	MarkRead(ctx context.Context, messageID string, userID domain.UserID) (bool, error)
	// ToggleReaction removes the (userID, reactionType) entry when present,
	// otherwise adds it. Atomic at the store.
	ToggleReaction(ctx context.Context, messageID string, userID domain.UserID, reactionType string) error
}
