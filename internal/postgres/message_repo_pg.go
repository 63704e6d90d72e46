package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vega-chat/chat-service/internal/domain"
	"github.com/vega-chat/chat-service/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepo struct {
	db *pgxpool.Pool
}

func NewMessageRepo(db *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{db: db}
}

// selectMessage aggregates reactions per message; read_by lives on the row.
const selectMessage = `
	SELECT m.id, m.sender, m.sender_id, m.content, m.kind, m.scope,
	       m.room, m.recipient, m.file_name, m.file_type, m.read_by, m.created_at,
	       COALESCE(jsonb_agg(jsonb_build_object('userId', r.user_id, 'type', r.type) ORDER BY r.created_at)
	                FILTER (WHERE r.user_id IS NOT NULL), '[]'::jsonb)
	FROM messages m
	LEFT JOIN message_reactions r ON r.message_id = m.id
`

func (p *MessageRepo) Insert(ctx context.Context, m *domain.Message) error {
	var room *string
	if m.Scope == domain.ScopeRoom {
		room = &m.Room
	}
	var recipient *int64
	if m.Recipient != nil {
		v := int64(*m.Recipient)
		recipient = &v
	}
	var fileName, fileType *string
	if m.FileName != "" {
		fileName = &m.FileName
	}
	if m.FileType != "" {
		fileType = &m.FileType
	}

	err := p.db.QueryRow(ctx, `
		INSERT INTO messages (sender, sender_id, content, kind, scope, room, recipient, file_name, file_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, m.Sender, int64(m.SenderID), m.Content, string(m.Kind), string(m.Scope),
		room, recipient, fileName, fileType).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return mapPgError(err)
	}
	return nil
}

func (p *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	row := p.db.QueryRow(ctx, selectMessage+` WHERE m.id = $1 GROUP BY m.id`, id)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapPgError(err)
	}
	return m, nil
}

func (p *MessageRepo) RoomHistory(ctx context.Context, room, before string, limit int) ([]domain.Message, error) {
	cutAt, cutID, err := p.resolveBefore(ctx, before)
	if err != nil {
		return nil, err
	}

	return p.list(ctx, selectMessage+`
		WHERE m.scope = 'room' AND m.room = $1
		  AND ($2::timestamptz IS NULL
		       OR m.created_at < $2
		       OR (m.created_at = $2 AND m.id < $3::uuid))
		GROUP BY m.id
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $4
	`, true, room, cutAt, cutID, clampLimit(limit))
}

func (p *MessageRepo) PrivateHistory(ctx context.Context, a, b domain.UserID, before string, limit int) ([]domain.Message, error) {
	cutAt, cutID, err := p.resolveBefore(ctx, before)
	if err != nil {
		return nil, err
	}

	return p.list(ctx, selectMessage+`
		WHERE m.scope = 'private'
		  AND ((m.sender_id = $1 AND m.recipient = $2) OR (m.sender_id = $2 AND m.recipient = $1))
		  AND ($3::timestamptz IS NULL
		       OR m.created_at < $3
		       OR (m.created_at = $3 AND m.id < $4::uuid))
		GROUP BY m.id
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $5
	`, true, int64(a), int64(b), cutAt, cutID, clampLimit(limit))
}

func (p *MessageRepo) PrivateInvolving(ctx context.Context, userID domain.UserID, limit int) ([]domain.Message, error) {
	return p.list(ctx, selectMessage+`
		WHERE m.scope = 'private' AND (m.sender_id = $1 OR m.recipient = $1)
		GROUP BY m.id
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2
	`, false, int64(userID), clampLimit(limit))
}

func (p *MessageRepo) Search(ctx context.Context, query string, limit int) ([]domain.Message, error) {
	pattern := "%" + escapeLike(query) + "%"

	// newest first, not reversed: search results are a feed, not a transcript.
	// file messages carry base64 payloads in content, so only text is searched.
	return p.list(ctx, selectMessage+`
		WHERE m.kind = 'text' AND m.content ILIKE $1
		GROUP BY m.id
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2
	`, false, pattern, clampLimit(limit))
}

// MarkRead is a single atomic statement: idempotent, no read-modify-write race.
func (p *MessageRepo) MarkRead(ctx context.Context, messageID string, userID domain.UserID) (bool, error) {
	if _, err := uuid.Parse(messageID); err != nil {
		return false, repository.ErrNotFound
	}
	tag, err := p.db.Exec(ctx, `
		UPDATE messages
		SET read_by = array_append(read_by, $2)
		WHERE id = $1 AND NOT ($2 = ANY(read_by))
	`, messageID, int64(userID))
	if err != nil {
		return false, mapPgError(err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// no-op: either already read or the message does not exist
	var exists bool
	if err := p.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, messageID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

// ToggleReaction runs delete-then-insert in one transaction; the primary key
// on (message_id, user_id, type) makes concurrent toggles converge.
func (p *MessageRepo) ToggleReaction(ctx context.Context, messageID string, userID domain.UserID, reactionType string) error {
	if _, err := uuid.Parse(messageID); err != nil {
		return repository.ErrNotFound
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`, messageID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND type = $3
	`, messageID, int64(userID), reactionType)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := tx.Exec(ctx, `
			INSERT INTO message_reactions (message_id, user_id, type)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, messageID, int64(userID), reactionType); err != nil {
			return mapPgError(err)
		}
	}

	return tx.Commit(ctx)
}

// resolveBefore accepts a message id (resolved to its created_at with an id
// tie-break) or a raw RFC3339 timestamp. Empty or unresolvable means no cursor.
func (p *MessageRepo) resolveBefore(ctx context.Context, before string) (*time.Time, *string, error) {
	if before == "" {
		return nil, nil, nil
	}

	if _, err := uuid.Parse(before); err == nil {
		var createdAt time.Time
		err := p.db.QueryRow(ctx, `SELECT created_at FROM messages WHERE id = $1`, before).Scan(&createdAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, nil, nil
			}
			return nil, nil, err
		}
		return &createdAt, &before, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, before); err == nil {
		return &t, nil, nil
	}
	if t, err := time.Parse(time.RFC3339, before); err == nil {
		return &t, nil, nil
	}

	return nil, nil, nil
}

// list runs the query newest-first and, for history, reverses to chronological.
func (p *MessageRepo) list(ctx context.Context, sql string, chronological bool, args ...any) ([]domain.Message, error) {
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if chronological {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		m         domain.Message
		senderID  int64
		kind      string
		scope     string
		room      *string
		recipient *int64
		fileName  *string
		fileType  *string
		readBy    []int64
	)

	if err := row.Scan(&m.ID, &m.Sender, &senderID, &m.Content, &kind, &scope,
		&room, &recipient, &fileName, &fileType, &readBy, &m.CreatedAt, &m.Reactions); err != nil {
		return nil, err
	}

	m.SenderID = domain.UserID(senderID)
	m.Kind = domain.MessageKind(kind)
	m.Scope = domain.MessageScope(scope)
	if room != nil {
		m.Room = *room
	}
	if recipient != nil {
		id := domain.UserID(*recipient)
		m.Recipient = &id
	}
	if fileName != nil {
		m.FileName = *fileName
	}
	if fileType != nil {
		m.FileType = *fileType
	}
	m.ReadBy = make([]domain.UserID, 0, len(readBy))
	for _, id := range readBy {
		m.ReadBy = append(m.ReadBy, domain.UserID(id))
	}
	if m.Reactions == nil {
		m.Reactions = []domain.Reaction{}
	}

	return &m, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
