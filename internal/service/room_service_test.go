package service

import (
	"context"
	"errors"
	"testing"

	"github.com/vega-chat/chat-service/internal/domain"
)

func TestRoomCreate_Duplicate(t *testing.T) {
	svc := NewRoomService(newMemRoomRepo())

	if _, err := svc.Create(context.Background(), "dev", "alice"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.Create(context.Background(), "dev", "bob")
	if !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}
}

func TestRoomCreate_EmptyName(t *testing.T) {
	svc := NewRoomService(newMemRoomRepo())

	if _, err := svc.Create(context.Background(), "   ", "alice"); !errors.Is(err, domain.ErrRoomNameRequired) {
		t.Fatalf("expected ErrRoomNameRequired, got %v", err)
	}
}

func TestEnsureJoined_CreatesOnFirstJoin(t *testing.T) {
	repo := newMemRoomRepo()
	svc := NewRoomService(repo)

	room, err := svc.EnsureJoined(context.Background(), "dev", 1, "alice")
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	if room.ID == "" {
		t.Fatalf("expected room to be created")
	}

	again, err := svc.EnsureJoined(context.Background(), "dev", 2, "bob")
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if again.ID != room.ID {
		t.Fatalf("join must not recreate the room: %q vs %q", again.ID, room.ID)
	}

	members, err := repo.Members(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
}

func TestEnsureJoined_Idempotent(t *testing.T) {
	repo := newMemRoomRepo()
	svc := NewRoomService(repo)

	for i := 0; i < 3; i++ {
		if _, err := svc.EnsureJoined(context.Background(), "dev", 1, "alice"); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}

	room, _ := repo.GetByName(context.Background(), "dev")
	members, _ := repo.Members(context.Background(), room.ID)
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
}

func TestList_GeneralPinnedFirst(t *testing.T) {
	repo := newMemRoomRepo()
	svc := NewRoomService(repo)

	if _, err := svc.Create(context.Background(), "dev", "alice"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.EnsureGeneral(context.Background()); err != nil {
		t.Fatalf("ensure general: %v", err)
	}

	rooms, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	if rooms[0].Name != domain.GeneralRoom {
		t.Fatalf("expected %q first, got %q", domain.GeneralRoom, rooms[0].Name)
	}
}
