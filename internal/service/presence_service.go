package service

import (
	"context"

	"github.com/vega-chat/chat-service/internal/domain"
	"github.com/vega-chat/chat-service/internal/repository"
)

// LiveSession is the registry's view of one connected identity, passed in by
// the transport so the service stays store-only.
type LiveSession struct {
	SessionID string
	Status    string
}

// UserPresence merges the durable directory entry with registry liveness.
type UserPresence struct {
	ID           domain.UserID
	Username     string
	ProfileImage *string
	Status       string
	SessionID    string // one live session id, empty when offline
}

type PresenceService struct {
	users repository.UserRepository
}

func NewPresenceService(users repository.UserRepository) *PresenceService {
	return &PresenceService{users: users}
}

// Directory lists every known identity. An identity is online iff the
// registry holds at least one session for it; otherwise the last persisted
// status is used.
func (s *PresenceService) Directory(ctx context.Context, live map[domain.UserID]LiveSession) ([]UserPresence, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]UserPresence, 0, len(users))
	for _, u := range users {
		p := UserPresence{
			ID:           u.ID,
			Username:     u.Username,
			ProfileImage: u.ProfileImage,
			Status:       u.Status,
		}
		if p.Status == "" {
			p.Status = domain.StatusOffline
		}
		if ls, ok := live[u.ID]; ok {
			p.Status = ls.Status
			p.SessionID = ls.SessionID
		}
		out = append(out, p)
	}

	return out, nil
}

// UpdateStatus persists the last self-reported status so it survives
// the identity going offline.
func (s *PresenceService) UpdateStatus(ctx context.Context, id domain.UserID, status string) error {
	return s.users.UpdateStatus(ctx, id, status)
}
