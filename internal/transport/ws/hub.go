package ws

import (
	"sort"
	"sync"

	"github.com/vega-chat/chat-service/internal/domain"
)

type Conn interface {
	SessionID() string
	Send(msg Envelope) error
	Close() error
}

// Live is one identity's registry-side presence: a representative session id
// and the in-memory status (online unless overridden by a status change).
type Live struct {
	SessionID string
	Status    string
}

type entry struct {
	conn     Conn
	userID   domain.UserID
	username string
	status   string
}

// Hub is the process-wide connection registry: the source of truth for
// presence, typing, room multicast groups, and private-message routing.
// Routing is by identity, so one identity may hold several sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*entry                   // sessionID -> entry
	byUser   map[domain.UserID]map[string]*entry // identity -> its sessions
	rooms    map[string]map[string]*entry        // room name -> sessionID -> entry
	typing   map[string]string                   // sessionID -> display name
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*entry),
		byUser:   make(map[domain.UserID]map[string]*entry),
		rooms:    make(map[string]map[string]*entry),
		typing:   make(map[string]string),
	}
}

// Register overwrites any stale prior mapping for the same session id.
func (h *Hub) Register(c Conn, userID domain.UserID, username string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(c.SessionID())

	e := &entry{conn: c, userID: userID, username: username, status: domain.StatusOnline}
	h.sessions[c.SessionID()] = e

	us, ok := h.byUser[userID]
	if !ok {
		us = make(map[string]*entry)
		h.byUser[userID] = us
	}
	us[c.SessionID()] = e
}

func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(sessionID)
}

func (h *Hub) removeLocked(sessionID string) {
	e, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(h.sessions, sessionID)
	delete(h.typing, sessionID)

	if us, ok := h.byUser[e.userID]; ok {
		delete(us, sessionID)
		if len(us) == 0 {
			delete(h.byUser, e.userID)
		}
	}
	for room, members := range h.rooms {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// SessionsFor returns every live connection of an identity.
func (h *Hub) SessionsFor(userID domain.UserID) []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	us := h.byUser[userID]
	out := make([]Conn, 0, len(us))
	for _, e := range us {
		out = append(out, e.conn)
	}
	return out
}

// OnlineUsers snapshots the registry: identity -> live presence.
func (h *Hub) OnlineUsers() map[domain.UserID]Live {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[domain.UserID]Live, len(h.byUser))
	for id, us := range h.byUser {
		for sid, e := range us {
			out[id] = Live{SessionID: sid, Status: e.status}
			break
		}
	}
	return out
}

func (h *Hub) JoinRoom(sessionID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*entry)
		h.rooms[room] = members
	}
	members[sessionID] = e
}

func (h *Hub) LeaveRoom(sessionID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) BroadcastRoom(room string, msg Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, e := range h.rooms[room] {
		_ = e.conn.Send(msg) // best-effort, per-connection failures are isolated
	}
}

func (h *Hub) BroadcastAll(msg Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, e := range h.sessions {
		_ = e.conn.Send(msg)
	}
}

// SendToUser delivers to the full session set of the identity.
func (h *Hub) SendToUser(userID domain.UserID, msg Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, e := range h.byUser[userID] {
		if e.conn.Send(msg) == nil {
			n++
		}
	}
	return n
}

func (h *Hub) SendTo(sessionID string, msg Envelope) {
	h.mu.RLock()
	e, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if ok {
		_ = e.conn.Send(msg)
	}
}

// SetTyping rebuilds the typing set entry for the session and returns the
// full current list of typing display names.
func (h *Hub) SetTyping(sessionID string, isTyping bool) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.sessions[sessionID]; ok {
		if isTyping {
			h.typing[sessionID] = e.username
		} else {
			delete(h.typing, sessionID)
		}
	}
	return h.typingNamesLocked()
}

func (h *Hub) TypingNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.typingNamesLocked()
}

func (h *Hub) typingNamesLocked() []string {
	out := make([]string, 0, len(h.typing))
	for _, name := range h.typing {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) SetStatus(sessionID, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.sessions[sessionID]; ok {
		e.status = status
	}
}

// SetUsername updates the registry-side display name (used by typing and
// peer events); the durable profile is updated separately.
func (h *Hub) SetUsername(sessionID, username string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.sessions[sessionID]; ok {
		e.username = username
		if name, typing := h.typing[sessionID]; typing && name != username {
			h.typing[sessionID] = username
		}
	}
}

func (h *Hub) Username(sessionID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if e, ok := h.sessions[sessionID]; ok {
		return e.username
	}
	return ""
}

// CloseAll is shutdown-only: closes every connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sid, e := range h.sessions {
		_ = e.conn.Close()
		delete(h.sessions, sid)
	}
	h.byUser = make(map[domain.UserID]map[string]*entry)
	h.rooms = make(map[string]map[string]*entry)
	h.typing = make(map[string]string)
}
