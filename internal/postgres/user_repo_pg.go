package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/vega-chat/chat-service/internal/domain"
	"github.com/vega-chat/chat-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepo struct {
	q querier
}

func NewUserRepo(db *pgxpool.Pool) *UserRepo {
	return &UserRepo{q: db}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) (domain.UserID, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, profile_image, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, u.Username, u.PasswordHash, u.ProfileImage, u.Status, u.CreatedAt).Scan(&id)
	if err != nil {
		return 0, mapPgError(err)
	}

	return domain.UserID(id), nil
}

func (r *UserRepo) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return r.getOne(ctx, `
		SELECT id, username, password_hash, profile_image, status, created_at
		FROM users WHERE id = $1
	`, int64(id))
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `
		SELECT id, username, password_hash, profile_image, status, created_at
		FROM users WHERE username = $1
	`, strings.TrimSpace(username))
}

func (r *UserRepo) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, username, password_hash, profile_image, status, created_at
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *UserRepo) UpdateProfile(ctx context.Context, id domain.UserID, username *string, profileImage *string) error {
	setParts := make([]string, 0, 2)
	args := make([]any, 0, 3)
	i := 1

	if username != nil && strings.TrimSpace(*username) != "" {
		setParts = append(setParts, "username = $"+strconv.Itoa(i))
		args = append(args, strings.TrimSpace(*username))
		i++
	}
	if profileImage != nil {
		setParts = append(setParts, "profile_image = $"+strconv.Itoa(i))
		args = append(args, profileImage)
		i++
	}
	if len(setParts) == 0 {
		return nil
	}

	sql := "UPDATE users SET " + strings.Join(setParts, ", ") + " WHERE id = $" + strconv.Itoa(i)
	args = append(args, int64(id))

	tag, err := r.q.Exec(ctx, sql, args...)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *UserRepo) UpdateStatus(ctx context.Context, id domain.UserID, status string) error {
	tag, err := r.q.Exec(ctx, `UPDATE users SET status = $2 WHERE id = $1`, int64(id), status)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, sql string, arg any) (*domain.User, error) {
	row := r.q.QueryRow(ctx, sql, arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapPgError(err)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var id int64
	if err := row.Scan(&id, &u.Username, &u.PasswordHash, &u.ProfileImage, &u.Status, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.ID = domain.UserID(id)
	return &u, nil
}
