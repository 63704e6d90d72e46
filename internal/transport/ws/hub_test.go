package ws

import (
	"sync"
	"testing"
)

type fakeConn struct {
	id string

	mu   sync.Mutex
	sent []Envelope
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) SessionID() string { return c.id }

func (c *fakeConn) Send(msg Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestSendToUser_AllSessionsOfIdentity(t *testing.T) {
	h := NewHub()
	phone := newFakeConn("s1")
	laptop := newFakeConn("s2")
	other := newFakeConn("s3")

	h.Register(phone, 1, "alice")
	h.Register(laptop, 1, "alice")
	h.Register(other, 2, "bob")

	n := h.SendToUser(1, Envelope{Type: EvtPrivateMessage})
	if n != 2 {
		t.Fatalf("expected delivery to 2 sessions, got %d", n)
	}
	if phone.received() != 1 || laptop.received() != 1 {
		t.Fatalf("both of alice's sessions must receive the frame")
	}
	if other.received() != 0 {
		t.Fatalf("bob must not receive alice's private message")
	}
}

func TestUnregister_CleansEverything(t *testing.T) {
	h := NewHub()
	c := newFakeConn("s1")

	h.Register(c, 1, "alice")
	h.JoinRoom("s1", "dev")
	h.SetTyping("s1", true)

	h.Unregister("s1")

	if len(h.OnlineUsers()) != 0 {
		t.Fatalf("identity must go offline with its last session")
	}
	if names := h.TypingNames(); len(names) != 0 {
		t.Fatalf("typing entry must die with the session, got %v", names)
	}
	h.BroadcastRoom("dev", Envelope{Type: EvtRoomMessage})
	if c.received() != 0 {
		t.Fatalf("no delivery after unregister")
	}
}

func TestOnlineUsers_OnePerIdentity(t *testing.T) {
	h := NewHub()
	h.Register(newFakeConn("s1"), 1, "alice")
	h.Register(newFakeConn("s2"), 1, "alice")
	h.Register(newFakeConn("s3"), 2, "bob")

	online := h.OnlineUsers()
	if len(online) != 2 {
		t.Fatalf("expected 2 identities online, got %d", len(online))
	}
	if _, ok := online[1]; !ok {
		t.Fatalf("alice should be online")
	}
}

func TestBroadcastRoom_OnlyMembers(t *testing.T) {
	h := NewHub()
	in := newFakeConn("s1")
	out := newFakeConn("s2")

	h.Register(in, 1, "alice")
	h.Register(out, 2, "bob")
	h.JoinRoom("s1", "dev")

	h.BroadcastRoom("dev", Envelope{Type: EvtRoomMessage})

	if in.received() != 1 {
		t.Fatalf("room member must receive the frame")
	}
	if out.received() != 0 {
		t.Fatalf("non-member must not receive the frame")
	}
}

func TestLeaveRoom_StopsDelivery(t *testing.T) {
	h := NewHub()
	c := newFakeConn("s1")
	h.Register(c, 1, "alice")
	h.JoinRoom("s1", "dev")
	h.LeaveRoom("s1", "dev")

	h.BroadcastRoom("dev", Envelope{Type: EvtRoomMessage})
	if c.received() != 0 {
		t.Fatalf("no delivery after leaving the room")
	}
}

func TestSetTyping_SortedNames(t *testing.T) {
	h := NewHub()
	h.Register(newFakeConn("s1"), 1, "zoe")
	h.Register(newFakeConn("s2"), 2, "alice")

	h.SetTyping("s1", true)
	names := h.SetTyping("s2", true)

	if len(names) != 2 || names[0] != "alice" || names[1] != "zoe" {
		t.Fatalf("expected sorted [alice zoe], got %v", names)
	}

	names = h.SetTyping("s1", false)
	if len(names) != 1 || names[0] != "alice" {
		t.Fatalf("expected [alice] after zoe stopped, got %v", names)
	}
}

func TestSetUsername_RefreshesTypingEntry(t *testing.T) {
	h := NewHub()
	h.Register(newFakeConn("s1"), 1, "alice")
	h.SetTyping("s1", true)

	h.SetUsername("s1", "alicia")

	names := h.TypingNames()
	if len(names) != 1 || names[0] != "alicia" {
		t.Fatalf("typing list must track the rename, got %v", names)
	}
}

func TestRegister_SameSessionIDReplaces(t *testing.T) {
	h := NewHub()
	stale := newFakeConn("s1")
	fresh := newFakeConn("s1")

	h.Register(stale, 1, "alice")
	h.Register(fresh, 1, "alice")

	h.BroadcastAll(Envelope{Type: EvtUserList})
	if stale.received() != 0 {
		t.Fatalf("stale connection must be dropped from the registry")
	}
	if fresh.received() != 1 {
		t.Fatalf("fresh connection must receive broadcasts")
	}
}
