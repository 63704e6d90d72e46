package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vega-chat/chat-service/internal/domain"
	"github.com/vega-chat/chat-service/internal/repository"
)

type RoomService struct {
	rooms repository.RoomRepository
}

func NewRoomService(rooms repository.RoomRepository) *RoomService {
	return &RoomService{rooms: rooms}
}

// Create is the explicit creation path. Duplicate names (case-sensitive
// exact match) fail with domain.ErrRoomExists; nothing is overwritten.
func (s *RoomService) Create(ctx context.Context, name, createdBy string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrRoomNameRequired
	}

	room := &domain.Room{Name: name, CreatedBy: createdBy}
	if err := s.rooms.Create(ctx, room); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, domain.ErrRoomExists
		}
		return nil, fmt.Errorf("rooms.Create: %w", err)
	}
	return room, nil
}

func (s *RoomService) List(ctx context.Context) ([]domain.Room, error) {
	return s.rooms.List(ctx)
}

// EnsureJoined lazily creates the room on first-ever join and records the
// identity in membership history. Both steps are idempotent.
func (s *RoomService) EnsureJoined(ctx context.Context, name string, user domain.UserID, username string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrRoomNameRequired
	}

	room, err := s.rooms.EnsureExists(ctx, name, username)
	if err != nil {
		return nil, fmt.Errorf("rooms.EnsureExists: %w", err)
	}
	if err := s.rooms.AddMember(ctx, room.ID, user); err != nil {
		return nil, fmt.Errorf("rooms.AddMember: %w", err)
	}

	return room, nil
}

// EnsureGeneral seeds the well-known always-present room at startup.
func (s *RoomService) EnsureGeneral(ctx context.Context) error {
	_, err := s.rooms.EnsureExists(ctx, domain.GeneralRoom, "")
	return err
}
