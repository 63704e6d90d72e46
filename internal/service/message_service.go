package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vega-chat/chat-service/internal/domain"
	"github.com/vega-chat/chat-service/internal/repository"
)

const (
	// DefaultHistoryLimit / MaxHistoryLimit bound pagination requests.
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
	// JoinSnapshotLimit caps the recent-message snapshot sent on room join.
	JoinSnapshotLimit = 100
)

type MessageService struct {
	messages repository.MessageRepository
	users    repository.UserRepository
}

func NewMessageService(messages repository.MessageRepository, users repository.UserRepository) *MessageService {
	return &MessageService{messages: messages, users: users}
}

// SendRoom persists a room-scoped text message. The caller broadcasts only
// after a nil error: an unpersisted message is never shown as delivered.
func (s *MessageService) SendRoom(ctx context.Context, sender string, senderID domain.UserID, room, text string) (*domain.Message, error) {
	m, err := domain.NewRoomMessage(sender, senderID, room, text)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("messages.Insert: %w", err)
	}
	return m, nil
}

// SendPrivate rejects unknown recipients before persisting so a typo'd id
// does not create an orphan thread.
func (s *MessageService) SendPrivate(ctx context.Context, sender string, senderID, to domain.UserID, text string) (*domain.Message, error) {
	m, err := domain.NewPrivateMessage(sender, senderID, to, text)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, to); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("users.GetByID: %w", err)
	}
	if err := s.messages.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("messages.Insert: %w", err)
	}
	return m, nil
}

// SendFile validates the payload cap before anything touches the store.
func (s *MessageService) SendFile(ctx context.Context, sender string, senderID domain.UserID, room, fileName, fileType, data string) (*domain.Message, error) {
	m, err := domain.NewFileMessage(sender, senderID, room, fileName, fileType, data)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("messages.Insert: %w", err)
	}
	return m, nil
}

// MarkRead adds the identity to the message's readBy set. Already-read is a
// no-op, not an error; the updated message is returned only when the set
// changed, so the caller knows whether to rebroadcast.
func (s *MessageService) MarkRead(ctx context.Context, userID domain.UserID, messageID string) (*domain.Message, bool, error) {
	changed, err := s.messages.MarkRead(ctx, messageID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, domain.ErrMessageNotFound
		}
		return nil, false, err
	}
	if !changed {
		return nil, false, nil
	}

	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// React toggles the (identity, type) reaction. Different types by the same
// identity coexist on one message.
func (s *MessageService) React(ctx context.Context, userID domain.UserID, messageID, reactionType string) (*domain.Message, error) {
	reactionType = strings.TrimSpace(reactionType)
	if reactionType == "" {
		return nil, domain.ErrEmptyMessage
	}

	if err := s.messages.ToggleReaction(ctx, messageID, userID, reactionType); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}

	return s.messages.GetByID(ctx, messageID)
}

func (s *MessageService) RoomHistory(ctx context.Context, room, before string, limit int) ([]domain.Message, error) {
	if room == "" {
		room = domain.GeneralRoom
	}
	return s.messages.RoomHistory(ctx, room, before, clamp(limit))
}

func (s *MessageService) PrivateHistory(ctx context.Context, a, b domain.UserID, before string, limit int) ([]domain.Message, error) {
	return s.messages.PrivateHistory(ctx, a, b, before, clamp(limit))
}

func (s *MessageService) Search(ctx context.Context, query string, limit int) ([]domain.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyMessage
	}
	return s.messages.Search(ctx, query, clamp(limit))
}

// RoomSnapshot is the recent-history slice handed back on join, chronological.
func (s *MessageService) RoomSnapshot(ctx context.Context, room string) ([]domain.Message, error) {
	return s.messages.RoomHistory(ctx, room, "", JoinSnapshotLimit)
}

func clamp(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
