package client

import (
	"strconv"
	"sync"
	"time"

	"github.com/vega-chat/chat-service/internal/transport/ws"
)

type DeliveryState int

const (
	StatePending DeliveryState = iota
	StateConfirmed
	StateFailed
)

func (s DeliveryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Entry is one message as the UI sees it: either an optimistic local send
// awaiting its ack, or a server-confirmed message.
type Entry struct {
	LocalID string // empty for messages that never were local
	State   DeliveryState
	Msg     ws.MessageDTO
	Err     string
}

// Store keeps per-conversation ordered message lists. A conversation is a
// room name or a private thread key; ordering is append for live traffic
// and prepend for history pages, with dedup by server id in both
// directions so replays and self-echoes never duplicate.
type Store struct {
	mu      sync.Mutex
	convs   map[string][]Entry
	byLocal map[string]string // localID -> conversation key
}

func NewStore() *Store {
	return &Store{
		convs:   make(map[string][]Entry),
		byLocal: make(map[string]string),
	}
}

// RoomKey and PrivateKey name conversations.
func RoomKey(room string) string { return "room:" + room }

func PrivateKey(otherID int64) string { return "private:" + strconv.FormatInt(otherID, 10) }

// AddPending appends an optimistic entry; it renders immediately and is
// reconciled when the ack or echo arrives.
func (s *Store) AddPending(conv, localID string, msg ws.MessageDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.convs[conv] = append(s.convs[conv], Entry{LocalID: localID, State: StatePending, Msg: msg})
	s.byLocal[localID] = conv
}

// Confirm resolves a pending entry with the canonical server id and
// timestamp from its ack. Unknown local ids are ignored (the entry may
// already have been resolved by the echo). The byLocal mapping dies with
// the resolution so long sessions do not accumulate it.
func (s *Store) Confirm(localID, serverID string, ts *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byLocal[localID]
	if !ok {
		return
	}
	delete(s.byLocal, localID)

	list := s.convs[conv]
	for i := range list {
		if list[i].LocalID == localID {
			list[i].State = StateConfirmed
			list[i].Msg.ID = serverID
			if ts != nil {
				list[i].Msg.Timestamp = *ts
			}
			return
		}
	}
}

func (s *Store) Fail(localID, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.byLocal[localID]
	if !ok {
		return
	}
	delete(s.byLocal, localID)

	list := s.convs[conv]
	for i := range list {
		if list[i].LocalID == localID {
			list[i].State = StateFailed
			list[i].Err = reason
			return
		}
	}
}

// ApplyInbound merges a live message. Rules, in order: a known server id
// updates in place (read receipts, reactions); a self-echo binds to the
// oldest matching pending entry instead of duplicating; otherwise append.
func (s *Store) ApplyInbound(conv string, msg ws.MessageDTO, selfID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.convs[conv]
	for i := range list {
		if list[i].Msg.ID != "" && list[i].Msg.ID == msg.ID {
			state := list[i].State
			local := list[i].LocalID
			list[i] = Entry{LocalID: local, State: state, Msg: msg}
			if state == StatePending {
				list[i].State = StateConfirmed
			}
			return
		}
	}

	if msg.SenderID == selfID {
		for i := range list {
			if list[i].State == StatePending && list[i].Msg.ID == "" && list[i].Msg.Content == msg.Content {
				list[i].State = StateConfirmed
				list[i].Msg = msg
				return
			}
		}
	}

	s.convs[conv] = append(list, Entry{State: StateConfirmed, Msg: msg})
}

// Update replaces a message wherever its server id appears; used for
// message_updated frames, which carry no conversation hint.
func (s *Store) Update(msg ws.MessageDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conv, list := range s.convs {
		for i := range list {
			if list[i].Msg.ID == msg.ID {
				list[i].Msg = msg
				s.convs[conv] = list
				return
			}
		}
	}
}

// Prepend inserts an older history page ahead of the current list,
// dropping any message already present.
func (s *Store) Prepend(conv string, page []ws.MessageDTO) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.convs[conv]
	known := make(map[string]bool, len(list))
	for i := range list {
		if list[i].Msg.ID != "" {
			known[list[i].Msg.ID] = true
		}
	}

	fresh := make([]Entry, 0, len(page))
	for _, m := range page {
		if known[m.ID] {
			continue
		}
		fresh = append(fresh, Entry{State: StateConfirmed, Msg: m})
	}

	s.convs[conv] = append(fresh, list...)
	return len(fresh)
}

// ReplaceAll swaps in a fresh authoritative snapshot (reconnect refetch),
// keeping local entries that are still pending or failed so unsent input
// is not lost.
func (s *Store) ReplaceAll(conv string, snapshot []ws.MessageDTO) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []Entry
	for _, e := range s.convs[conv] {
		if e.LocalID != "" && e.State != StateConfirmed {
			kept = append(kept, e)
		}
	}

	list := make([]Entry, 0, len(snapshot)+len(kept))
	for _, m := range snapshot {
		list = append(list, Entry{State: StateConfirmed, Msg: m})
	}
	s.convs[conv] = append(list, kept...)
}

func (s *Store) Messages(conv string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.convs[conv]))
	copy(out, s.convs[conv])
	return out
}

// OldestID returns the cursor for the next LoadOlder call, empty when the
// conversation has no server-confirmed messages yet.
func (s *Store) OldestID(conv string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.convs[conv] {
		if e.Msg.ID != "" {
			return e.Msg.ID
		}
	}
	return ""
}
