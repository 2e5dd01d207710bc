package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const backendRedis = "redis"

// deleteScript removes a message of room ARGV[3] only when the requester
// wrote it. Returns 0 when the message is missing or lives in another room,
// -1 when the author differs.
var deleteScript = redis.NewScript(`
local author = redis.call('HGET', KEYS[1], 'author')
if not author then
	return 0
end
local room = redis.call('HGET', KEYS[1], 'room')
if room ~= ARGV[3] then
	return 0
end
if author ~= ARGV[1] then
	return -1
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', 'room:' .. room .. ':messages', ARGV[2])
return 1
`)

// RedisStore keeps each message as a msgpack blob in a hash and orders
// rooms with a sorted set scored by sequence.
type RedisStore struct {
	client *redis.Client
}

var _ MessageStore = (*RedisStore)(nil)

// NewRedisStore connects to the server at redisURL.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("ping redis", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func roomSeqKey(room string) string      { return "room:" + room + ":seq" }
func roomMessagesKey(room string) string { return "room:" + room + ":messages" }
func messageKey(id string) string        { return "message:" + id }

// Append implements MessageStore.
func (s *RedisStore) Append(ctx context.Context, draft domain.Draft) (msg *domain.Message, err error) {
	defer func(start time.Time) { observe(backendRedis, "append", start, err) }(time.Now())

	d, err := NormalizeDraft(draft)
	if err != nil {
		return nil, err
	}

	seq, err := s.client.Incr(ctx, roomSeqKey(d.Room)).Result()
	if err != nil {
		return nil, unavailable("next sequence", err)
	}

	m := newMessage(d, seq, time.Now())
	data, err := msgpack.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, messageKey(m.ID), "data", data, "author", m.AuthorID, "room", m.Room)
		pipe.ZAdd(ctx, roomMessagesKey(m.Room), redis.Z{Score: float64(m.Seq), Member: m.ID})
		return nil
	})
	if err != nil {
		return nil, unavailable("append message", err)
	}
	return &m, nil
}

// ListByRoom implements MessageStore.
func (s *RedisStore) ListByRoom(ctx context.Context, room string) (msgs []domain.Message, err error) {
	defer func(start time.Time) { observe(backendRedis, "list", start, err) }(time.Now())

	ids, err := s.client.ZRange(ctx, roomMessagesKey(room), 0, -1).Result()
	if err != nil {
		return nil, unavailable("list messages", err)
	}

	msgs = make([]domain.Message, 0, len(ids))
	if len(ids) == 0 {
		return msgs, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, messageKey(id), "data")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("list messages", err)
	}

	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			// deleted between ZRANGE and HGET
			continue
		}
		if err != nil {
			return nil, unavailable("list messages", err)
		}
		var m domain.Message
		if err := msgpack.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// DeleteByID implements MessageStore.
func (s *RedisStore) DeleteByID(ctx context.Context, room, id, requesterID string) (err error) {
	defer func(start time.Time) { observe(backendRedis, "delete", start, err) }(time.Now())

	res, err := deleteScript.Run(ctx, s.client, []string{messageKey(id)}, requesterID, id, room).Int()
	if err != nil {
		return unavailable("delete message", err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return fmt.Errorf("message %s: %w", id, domain.ErrForbidden)
	default:
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
}

// Close implements MessageStore.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
