package client

import (
	"testing"
	"time"

	"github.com/vega-chat/chat-service/internal/transport/ws"
)

func TestStore_PendingConfirmedByAck(t *testing.T) {
	s := NewStore()
	conv := RoomKey("general")

	s.AddPending(conv, "local-1", ws.MessageDTO{SenderID: 1, Content: "hello"})

	entries := s.Messages(conv)
	if len(entries) != 1 || entries[0].State != StatePending {
		t.Fatalf("expected one pending entry, got %+v", entries)
	}

	stamped := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Confirm("local-1", "srv-9", &stamped)

	entries = s.Messages(conv)
	if entries[0].State != StateConfirmed {
		t.Fatalf("expected confirmed, got %v", entries[0].State)
	}
	if entries[0].Msg.ID != "srv-9" {
		t.Fatalf("expected canonical id, got %q", entries[0].Msg.ID)
	}
	if !entries[0].Msg.Timestamp.Equal(stamped) {
		t.Fatalf("ack timestamp must replace the optimistic one, got %v", entries[0].Msg.Timestamp)
	}
}

func TestStore_ResolvedLocalIDsAreReleased(t *testing.T) {
	s := NewStore()
	conv := RoomKey("general")

	s.AddPending(conv, "local-1", ws.MessageDTO{SenderID: 1, Content: "hello"})
	s.AddPending(conv, "local-2", ws.MessageDTO{SenderID: 1, Content: "world"})

	s.Confirm("local-1", "srv-1", nil)
	s.Fail("local-2", "ack timeout")

	if n := len(s.byLocal); n != 0 {
		t.Fatalf("resolved local ids must be dropped from the index, %d left", n)
	}

	// resolving again is a no-op
	s.Confirm("local-1", "srv-other", nil)
	entries := s.Messages(conv)
	if entries[0].Msg.ID != "srv-1" {
		t.Fatalf("stale confirm must not rebind, got %q", entries[0].Msg.ID)
	}
}

func TestStore_FailedSendKeepsEntry(t *testing.T) {
	s := NewStore()
	conv := RoomKey("general")

	s.AddPending(conv, "local-1", ws.MessageDTO{SenderID: 1, Content: "hello"})
	s.Fail("local-1", "ack timeout")

	entries := s.Messages(conv)
	if len(entries) != 1 || entries[0].State != StateFailed {
		t.Fatalf("expected a failed entry, got %+v", entries)
	}
	if entries[0].Err != "ack timeout" {
		t.Fatalf("expected failure reason, got %q", entries[0].Err)
	}
}

func TestStore_SelfEchoBindsToPending(t *testing.T) {
	s := NewStore()
	conv := RoomKey("general")

	s.AddPending(conv, "local-1", ws.MessageDTO{SenderID: 1, Content: "hello"})

	// the broadcast echo can land before the ack
	s.ApplyInbound(conv, ws.MessageDTO{ID: "srv-9", SenderID: 1, Content: "hello"}, 1)

	entries := s.Messages(conv)
	if len(entries) != 1 {
		t.Fatalf("self-echo must not duplicate, got %d entries", len(entries))
	}
	if entries[0].State != StateConfirmed || entries[0].Msg.ID != "srv-9" {
		t.Fatalf("echo should confirm the pending entry, got %+v", entries[0])
	}

	// late ack for the same send is a no-op on the already-bound entry
	s.Confirm("local-1", "srv-9", nil)
	if got := s.Messages(conv); len(got) != 1 {
		t.Fatalf("ack after echo must not duplicate, got %d entries", len(got))
	}
}

func TestStore_PeerMessageAppends(t *testing.T) {
	s := NewStore()
	conv := RoomKey("general")

	s.ApplyInbound(conv, ws.MessageDTO{ID: "srv-1", SenderID: 2, Content: "hi"}, 1)
	s.ApplyInbound(conv, ws.MessageDTO{ID: "srv-2", SenderID: 2, Content: "there"}, 1)

	entries := s.Messages(conv)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestStore_KnownIDUpdatesInPlace(t *testing.T) {
	s := NewStore()
	conv := RoomKey("general")

	s.ApplyInbound(conv, ws.MessageDTO{ID: "srv-1", SenderID: 2, Content: "hi"}, 1)
	s.ApplyInbound(conv, ws.MessageDTO{ID: "srv-1", SenderID: 2, Content: "hi", ReadBy: []int64{1}}, 1)

	entries := s.Messages(conv)
	if len(entries) != 1 {
		t.Fatalf("replays must update in place, got %d entries", len(entries))
	}
	if len(entries[0].Msg.ReadBy) != 1 {
		t.Fatalf("expected updated readBy, got %+v", entries[0].Msg.ReadBy)
	}
}

func TestStore_UpdateFindsConversation(t *testing.T) {
	s := NewStore()
	s.ApplyInbound(RoomKey("dev"), ws.MessageDTO{ID: "srv-1", SenderID: 2, Content: "hi"}, 1)

	// message_updated frames carry no conversation hint
	s.Update(ws.MessageDTO{ID: "srv-1", SenderID: 2, Content: "hi", ReadBy: []int64{1}})

	entries := s.Messages(RoomKey("dev"))
	if len(entries) != 1 || len(entries[0].Msg.ReadBy) != 1 {
		t.Fatalf("update must land in the owning conversation, got %+v", entries)
	}
}

func TestStore_PrependDedups(t *testing.T) {
	s := NewStore()
	conv := RoomKey("general")

	s.ApplyInbound(conv, ws.MessageDTO{ID: "srv-3", SenderID: 2, Content: "three"}, 1)

	added := s.Prepend(conv, []ws.MessageDTO{
		{ID: "srv-1", SenderID: 2, Content: "one"},
		{ID: "srv-2", SenderID: 2, Content: "two"},
		{ID: "srv-3", SenderID: 2, Content: "three"}, // overlap with live view
	})
	if added != 2 {
		t.Fatalf("expected 2 new messages, got %d", added)
	}

	entries := s.Messages(conv)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Msg.ID != "srv-1" || entries[2].Msg.ID != "srv-3" {
		t.Fatalf("older page must come first: %+v", entries)
	}
}

func TestStore_ReplaceAllKeepsUnconfirmedLocal(t *testing.T) {
	s := NewStore()
	conv := RoomKey("general")

	s.ApplyInbound(conv, ws.MessageDTO{ID: "srv-1", SenderID: 2, Content: "old"}, 1)
	s.AddPending(conv, "local-1", ws.MessageDTO{SenderID: 1, Content: "unsent"})

	s.ReplaceAll(conv, []ws.MessageDTO{
		{ID: "srv-1", SenderID: 2, Content: "old"},
		{ID: "srv-2", SenderID: 2, Content: "missed while offline"},
	})

	entries := s.Messages(conv)
	if len(entries) != 3 {
		t.Fatalf("expected snapshot plus pending entry, got %d", len(entries))
	}
	last := entries[len(entries)-1]
	if last.LocalID != "local-1" || last.State != StatePending {
		t.Fatalf("pending local send must survive the resync, got %+v", last)
	}
}

func TestStore_OldestIDSkipsLocalEntries(t *testing.T) {
	s := NewStore()
	conv := RoomKey("general")

	s.AddPending(conv, "local-1", ws.MessageDTO{SenderID: 1, Content: "unsent"})
	if got := s.OldestID(conv); got != "" {
		t.Fatalf("pending-only conversation has no cursor, got %q", got)
	}

	s.Prepend(conv, []ws.MessageDTO{{ID: "srv-1", SenderID: 2, Content: "one"}})
	if got := s.OldestID(conv); got != "srv-1" {
		t.Fatalf("expected srv-1, got %q", got)
	}
}
