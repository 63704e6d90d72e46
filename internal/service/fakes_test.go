package service

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vega-chat/chat-service/internal/domain"
	"github.com/vega-chat/chat-service/internal/repository"
)

// in-memory repositories for service tests

type memUserRepo struct {
	mu   sync.Mutex
	seq  int64
	byID map[domain.UserID]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: make(map[domain.UserID]*domain.User)}
}

func (r *memUserRepo) Create(_ context.Context, u *domain.User) (domain.UserID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.byID {
		if e.Username == u.Username {
			return 0, repository.ErrAlreadyExists
		}
	}
	r.seq++
	cp := *u
	cp.ID = domain.UserID(r.seq)
	r.byID[cp.ID] = &cp
	return cp.ID, nil
}

func (r *memUserRepo) GetByID(_ context.Context, id domain.UserID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUserRepo) List(_ context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.User, 0, len(r.byID))
	for i := int64(1); i <= r.seq; i++ {
		if u, ok := r.byID[domain.UserID(i)]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r *memUserRepo) UpdateProfile(_ context.Context, id domain.UserID, username *string, profileImage *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if username != nil {
		for oid, other := range r.byID {
			if oid != id && other.Username == *username {
				return repository.ErrAlreadyExists
			}
		}
		u.Username = *username
	}
	if profileImage != nil {
		u.ProfileImage = profileImage
	}
	return nil
}

func (r *memUserRepo) UpdateStatus(_ context.Context, id domain.UserID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Status = status
	return nil
}

type memRoomRepo struct {
	mu      sync.Mutex
	seq     int64
	rooms   []*domain.Room
	members map[string]map[domain.UserID]bool
}

func newMemRoomRepo() *memRoomRepo {
	return &memRoomRepo{members: make(map[string]map[domain.UserID]bool)}
}

func (r *memRoomRepo) Create(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.rooms {
		if e.Name == room.Name {
			return repository.ErrAlreadyExists
		}
	}
	r.seq++
	room.ID = "room-" + strconv.FormatInt(r.seq, 10)
	room.CreatedAt = time.Now()
	cp := *room
	r.rooms = append(r.rooms, &cp)
	return nil
}

func (r *memRoomRepo) GetByName(_ context.Context, name string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.rooms {
		if e.Name == name {
			cp := *e
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRoomRepo) List(_ context.Context) ([]domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Room, 0, len(r.rooms))
	for _, e := range r.rooms {
		if e.Name == domain.GeneralRoom {
			out = append([]domain.Room{*e}, out...)
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r *memRoomRepo) EnsureExists(ctx context.Context, name, createdBy string) (*domain.Room, error) {
	if room, err := r.GetByName(ctx, name); err == nil {
		return room, nil
	}
	room := &domain.Room{Name: name, CreatedBy: createdBy}
	if err := r.Create(ctx, room); err != nil {
		return r.GetByName(ctx, name)
	}
	return room, nil
}

func (r *memRoomRepo) AddMember(_ context.Context, roomID string, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.members[roomID]
	if !ok {
		set = make(map[domain.UserID]bool)
		r.members[roomID] = set
	}
	set[userID] = true
	return nil
}

func (r *memRoomRepo) Members(_ context.Context, roomID string) ([]domain.UserID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.UserID, 0, len(r.members[roomID]))
	for id := range r.members[roomID] {
		out = append(out, id)
	}
	return out, nil
}

type memMessageRepo struct {
	mu   sync.Mutex
	seq  int64
	msgs []*domain.Message
}

func newMemMessageRepo() *memMessageRepo { return &memMessageRepo{} }

func (r *memMessageRepo) Insert(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	m.ID = "msg-" + strconv.FormatInt(r.seq, 10)
	m.CreatedAt = time.Unix(0, r.seq*int64(time.Millisecond)).UTC()
	cp := *m
	r.msgs = append(r.msgs, &cp)
	return nil
}

func (r *memMessageRepo) GetByID(_ context.Context, id string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.findLocked(id)
	if m == nil {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMessageRepo) findLocked(id string) *domain.Message {
	for _, m := range r.msgs {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (r *memMessageRepo) RoomHistory(_ context.Context, room, before string, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pageLocked(before, limit, func(m *domain.Message) bool {
		return m.Scope == domain.ScopeRoom && m.Room == room
	})
}

func (r *memMessageRepo) PrivateHistory(_ context.Context, a, b domain.UserID, before string, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.pageLocked(before, limit, func(m *domain.Message) bool {
		if m.Scope != domain.ScopePrivate || m.Recipient == nil {
			return false
		}
		return (m.SenderID == a && *m.Recipient == b) || (m.SenderID == b && *m.Recipient == a)
	})
}

// pageLocked keeps chronological order and returns the last limit entries
// strictly before the cursor message.
func (r *memMessageRepo) pageLocked(before string, limit int, match func(*domain.Message) bool) ([]domain.Message, error) {
	cut := len(r.msgs)
	if before != "" {
		for i, m := range r.msgs {
			if m.ID == before {
				cut = i
				break
			}
		}
	}

	var out []domain.Message
	for _, m := range r.msgs[:cut] {
		if match(m) {
			out = append(out, *m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *memMessageRepo) PrivateInvolving(_ context.Context, userID domain.UserID, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Message
	for i := len(r.msgs) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.msgs[i]
		if m.Scope != domain.ScopePrivate {
			continue
		}
		if m.SenderID == userID || (m.Recipient != nil && *m.Recipient == userID) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memMessageRepo) Search(_ context.Context, query string, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Message
	for i := len(r.msgs) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.msgs[i]
		if m.Kind == domain.KindText && strings.Contains(strings.ToLower(m.Content), strings.ToLower(query)) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memMessageRepo) MarkRead(_ context.Context, messageID string, userID domain.UserID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.findLocked(messageID)
	if m == nil {
		return false, repository.ErrNotFound
	}
	if m.HasRead(userID) {
		return false, nil
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true, nil
}

func (r *memMessageRepo) ToggleReaction(_ context.Context, messageID string, userID domain.UserID, reactionType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.findLocked(messageID)
	if m == nil {
		return repository.ErrNotFound
	}
	for i, re := range m.Reactions {
		if re.UserID == userID && re.Type == reactionType {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return nil
		}
	}
	m.Reactions = append(m.Reactions, domain.Reaction{UserID: userID, Type: reactionType})
	return nil
}
