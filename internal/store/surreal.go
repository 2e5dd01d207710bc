package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nfrund/roomchat/internal/database"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const backendSurreal = "surreal"

const (
	surrealNextSeq = `UPSERT type::thing('room_seq', $room) SET value += 1 RETURN AFTER`
	surrealCreate  = `CREATE type::thing('message', $id) CONTENT {
		msg_id: $id,
		room: $room,
		seq: $seq,
		author_id: $author_id,
		author_name: $author_name,
		author_avatar: $author_avatar,
		body: $body,
		created_at: $created_at
	}`
	surrealList     = `SELECT * FROM message WHERE room = $room ORDER BY seq ASC`
	surrealDelete   = `DELETE type::thing('message', $id) WHERE room = $room AND author_id = $requester RETURN BEFORE`
	surrealAuthorOf = `SELECT author_id FROM type::thing('message', $id) WHERE room = $room`
)

type surrealSeq struct {
	Value int64 `json:"value"`
}

type surrealMessage struct {
	ID           *surrealmodels.RecordID       `json:"id,omitempty"`
	MsgID        string                        `json:"msg_id"`
	Room         string                        `json:"room"`
	Seq          int64                         `json:"seq"`
	AuthorID     string                        `json:"author_id"`
	AuthorName   string                        `json:"author_name"`
	AuthorAvatar string                        `json:"author_avatar"`
	Body         string                        `json:"body"`
	CreatedAt    *surrealmodels.CustomDateTime `json:"created_at,omitempty"`
}

func (r surrealMessage) toDomain() domain.Message {
	m := domain.Message{
		ID:           r.MsgID,
		Room:         r.Room,
		Seq:          r.Seq,
		AuthorID:     r.AuthorID,
		AuthorName:   r.AuthorName,
		AuthorAvatar: r.AuthorAvatar,
		Body:         r.Body,
	}
	if r.CreatedAt != nil {
		m.CreatedAt = r.CreatedAt.Time.UTC()
	}
	return m
}

// SurrealStore keeps messages in SurrealDB. Each room has a counter record
// in room_seq that is bumped atomically for every append.
type SurrealStore struct {
	conn database.DBConnection
}

var _ MessageStore = (*SurrealStore)(nil)

// NewSurrealStore creates a store on top of a managed connection.
func NewSurrealStore(conn database.DBConnection) *SurrealStore {
	return &SurrealStore{conn: conn}
}

// Append implements MessageStore.
func (s *SurrealStore) Append(ctx context.Context, draft domain.Draft) (msg *domain.Message, err error) {
	defer func(start time.Time) { observe(backendSurreal, "append", start, err) }(time.Now())

	d, err := NormalizeDraft(draft)
	if err != nil {
		return nil, err
	}

	ctx, cancel := database.TimeoutFromContext(ctx, s.conn.GetDBExecuteTimeout(), database.ContextKeyExecuteTimeout)
	defer cancel()

	err = s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		seq, err := database.QueryOne[surrealSeq](ctx, db, surrealNextSeq, map[string]any{"room": d.Room})
		if err != nil {
			return err
		}
		if seq == nil {
			return errors.New("sequence upsert returned no record")
		}

		m := newMessage(d, seq.Value, time.Now())
		created, err := database.QueryOne[surrealMessage](ctx, db, surrealCreate, map[string]any{
			"id":            m.ID,
			"room":          m.Room,
			"seq":           m.Seq,
			"author_id":     m.AuthorID,
			"author_name":   m.AuthorName,
			"author_avatar": m.AuthorAvatar,
			"body":          m.Body,
			"created_at":    surrealmodels.CustomDateTime{Time: m.CreatedAt},
		})
		if err != nil {
			return err
		}
		if created != nil {
			m = created.toDomain()
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
func (s *SurrealStore) ListByRoom(ctx context.Context, room string) (msgs []domain.Message, err error) {
	defer func(start time.Time) { observe(backendSurreal, "list", start, err) }(time.Now())

	ctx, cancel := database.TimeoutFromContext(ctx, s.conn.GetDBQueryTimeout(), database.ContextKeyQueryTimeout)
	defer cancel()

	var rows []surrealMessage
	err = s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		var err error
		rows, err = database.Query[surrealMessage](ctx, db, surrealList, map[string]any{"room": room})
		return err
	})
	if err != nil {
		return nil, unavailable("list messages", err)
	}

	msgs = make([]domain.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.toDomain())
	}
	return msgs, nil
}

// DeleteByID implements MessageStore. The author check is part of the
// DELETE statement, so a concurrent second delete finds nothing.
func (s *SurrealStore) DeleteByID(ctx context.Context, room, id, requesterID string) (err error) {
	defer func(start time.Time) { observe(backendSurreal, "delete", start, err) }(time.Now())

	ctx, cancel := database.TimeoutFromContext(ctx, s.conn.GetDBExecuteTimeout(), database.ContextKeyExecuteTimeout)
	defer cancel()

	var deleted []surrealMessage
	var owner *surrealMessage
	err = s.conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		params := map[string]any{"id": id, "room": room, "requester": requesterID}
		var err error
		deleted, err = database.Query[surrealMessage](ctx, db, surrealDelete, params)
		if err != nil || len(deleted) > 0 {
			return err
		}
		owner, err = database.QueryOne[surrealMessage](ctx, db, surrealAuthorOf, params)
		return err
	})
	if err != nil {
		return unavailable("delete message", err)
	}

	switch {
	case len(deleted) > 0:
		return nil
	case owner == nil:
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	default:
		return fmt.Errorf("message %s: %w", id, domain.ErrForbidden)
	}
}

// Close implements MessageStore.
func (s *SurrealStore) Close() error {
	return s.conn.Close(context.Background())
}
