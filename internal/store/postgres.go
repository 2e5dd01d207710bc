package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nfrund/roomchat/internal/domain"
)

const backendPostgres = "postgres"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS room_sequences (
	room  TEXT PRIMARY KEY,
	value BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	room          TEXT NOT NULL,
	seq           BIGINT NOT NULL,
	author_id     TEXT NOT NULL,
	author_name   TEXT NOT NULL,
	author_avatar TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	UNIQUE (room, seq)
);`

// PostgresStore handles message persistence in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ MessageStore = (*PostgresStore)(nil)

// NewPostgresStore connects a pool and makes sure the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, unavailable("open postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("ping postgres", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the tables used by the store if they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return unavailable("create schema", err)
	}
	return nil
}

// Append implements MessageStore. The room counter and the row are written
// in one transaction.
func (s *PostgresStore) Append(ctx context.Context, draft domain.Draft) (msg *domain.Message, err error) {
	defer func(start time.Time) { observe(backendPostgres, "append", start, err) }(time.Now())

	d, err := NormalizeDraft(draft)
	if err != nil {
		return nil, err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var seq int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO room_sequences (room, value) VALUES ($1, 1)
			ON CONFLICT (room) DO UPDATE SET value = room_sequences.value + 1
			RETURNING value
		`, d.Room).Scan(&seq); err != nil {
			return err
		}

		m := newMessage(d, seq, time.Now())
		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, room, seq, author_id, author_name, author_avatar, body, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, m.ID, m.Room, m.Seq, m.AuthorID, m.AuthorName, m.AuthorAvatar, m.Body, m.CreatedAt); err != nil {
			return err
		}
		msg = &m
		return nil
	})
	if err != nil {
		return nil, unavailable("append message", err)
	}
	return msg, nil
}

// ListByRoom implements MessageStore.
func (s *PostgresStore) ListByRoom(ctx context.Context, room string) (msgs []domain.Message, err error) {
	defer func(start time.Time) { observe(backendPostgres, "list", start, err) }(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT id, room, seq, author_id, author_name, author_avatar, body, created_at
		FROM messages WHERE room = $1
		ORDER BY seq ASC
	`, room)
	if err != nil {
		return nil, unavailable("list messages", err)
	}
	defer rows.Close()

	msgs = []domain.Message{}
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.Room, &m.Seq, &m.AuthorID, &m.AuthorName, &m.AuthorAvatar, &m.Body, &m.CreatedAt); err != nil {
			return nil, unavailable("scan message", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list messages", err)
	}
	return msgs, nil
}

// DeleteByID implements MessageStore.
func (s *PostgresStore) DeleteByID(ctx context.Context, room, id, requesterID string) (err error) {
	defer func(start time.Time) { observe(backendPostgres, "delete", start, err) }(time.Now())

	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1 AND room = $2 AND author_id = $3`, id, room, requesterID)
	if err != nil {
		return unavailable("delete message", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var author string
	err = s.pool.QueryRow(ctx, `SELECT author_id FROM messages WHERE id = $1 AND room = $2`, id, room).Scan(&author)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	case err != nil:
		return unavailable("delete message", err)
	default:
		return fmt.Errorf("message %s: %w", id, domain.ErrForbidden)
	}
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements MessageStore.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
