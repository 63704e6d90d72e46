package postgres

import (
	"context"
	"errors"

	"github.com/vega-chat/chat-service/internal/domain"
	"github.com/vega-chat/chat-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepo struct {
	q querier
}

func NewRoomRepo(db *pgxpool.Pool) *RoomRepo {
	return &RoomRepo{q: db}
}

func (r *RoomRepo) Create(ctx context.Context, room *domain.Room) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO rooms (name, created_by)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, room.Name, room.CreatedBy).Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *RoomRepo) GetByName(ctx context.Context, name string) (*domain.Room, error) {
	var rm domain.Room
	err := r.q.QueryRow(ctx, `
		SELECT id, name, created_by, created_at FROM rooms WHERE name = $1
	`, name).Scan(&rm.ID, &rm.Name, &rm.CreatedBy, &rm.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapPgError(err)
	}
	return &rm, nil
}

// List pins the general room first, then creation order.
func (r *RoomRepo) List(ctx context.Context) ([]domain.Room, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, name, created_by, created_at
		FROM rooms
		ORDER BY (name = $1) DESC, created_at ASC, id ASC
	`, domain.GeneralRoom)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		var rm domain.Room
		if err := rows.Scan(&rm.ID, &rm.Name, &rm.CreatedBy, &rm.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

// EnsureExists relies on the unique index on rooms.name: a concurrent
// duplicate create attempt leaves exactly one persisted row.
func (r *RoomRepo) EnsureExists(ctx context.Context, name string, createdBy string) (*domain.Room, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO rooms (name, created_by)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, name, createdBy)
	if err != nil {
		return nil, mapPgError(err)
	}

	return r.GetByName(ctx, name)
}

func (r *RoomRepo) AddMember(ctx context.Context, roomID string, userID domain.UserID) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO room_members (room_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, roomID, int64(userID))
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *RoomRepo) Members(ctx context.Context, roomID string) ([]domain.UserID, error) {
	rows, err := r.q.Query(ctx, `
		SELECT user_id FROM room_members WHERE room_id = $1 ORDER BY joined_at ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, domain.UserID(id))
	}
	return out, rows.Err()
}
