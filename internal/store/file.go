package store

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/spf13/afero"
)

const (
	backendFile   = "file"
	fileExtension = ".jsonl"
)

type fileRecord struct {
	Op      string          `json:"op"` // "append" or "delete"
	Message *domain.Message `json:"message,omitempty"`
	ID      string          `json:"id,omitempty"`
}

type fileRoom struct {
	seq      int64
	messages []domain.Message
}

// FileStore keeps one append-only JSON-lines log per room on an afero
// filesystem. The logs are replayed into memory when the store opens.
type FileStore struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	rooms map[string]*fileRoom
	index map[string]string // message id -> room
}

var _ MessageStore = (*FileStore)(nil)

// NewFileStore opens (creating if needed) the log directory and replays it.
func NewFileStore(fs afero.Fs, dir string) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, unavailable("create store directory", err)
	}
	s := &FileStore{
		fs:     fs,
		dir:    dir,
		logger: slog.Default().With("component", "store", "backend", backendFile),
		rooms:  make(map[string]*fileRoom),
		index:  make(map[string]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) roomPath(room string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(room))+fileExtension)
}

func (s *FileStore) load() error {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return unavailable("read store directory", err)
	}
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		raw, err := hex.DecodeString(strings.TrimSuffix(name, fileExtension))
		if err != nil {
			s.logger.Warn("Skipping file with unexpected name", "file", name)
			continue
		}
		if err := s.replay(string(raw), filepath.Join(s.dir, name)); err != nil {
			return err
		}
	}
	s.logger.Debug("Replayed message logs", "rooms", len(s.rooms), "messages", len(s.index))
	return nil
}

func (s *FileStore) replay(room, path string) error {
	f, err := s.fs.Open(path)
	if err != nil {
		return unavailable("open room log", err)
	}
	defer f.Close()

	r := s.room(room)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		var rec fileRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			// e.g. a torn trailing write
			s.logger.Warn("Skipping unreadable log line", "room", room, "line", line, "error", err)
			continue
		}
		switch rec.Op {
		case "append":
			if rec.Message == nil {
				continue
			}
			r.messages = append(r.messages, *rec.Message)
			s.index[rec.Message.ID] = room
			if rec.Message.Seq > r.seq {
				r.seq = rec.Message.Seq
			}
		case "delete":
			s.removeLocked(room, rec.ID)
		}
	}
	if err := scanner.Err(); err != nil {
		return unavailable("read room log", err)
	}
	sort.SliceStable(r.messages, func(i, j int) bool { return r.messages[i].Less(r.messages[j]) })
	return nil
}

func (s *FileStore) room(room string) *fileRoom {
	r, ok := s.rooms[room]
	if !ok {
		r = &fileRoom{}
		s.rooms[room] = r
	}
	return r
}

func (s *FileStore) writeRecord(room string, rec fileRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := s.fs.OpenFile(s.roomPath(room), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Append implements MessageStore.
func (s *FileStore) Append(ctx context.Context, draft domain.Draft) (msg *domain.Message, err error) {
	defer func(start time.Time) { observe(backendFile, "append", start, err) }(time.Now())

	d, err := NormalizeDraft(draft)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.room(d.Room)
	m := newMessage(d, r.seq+1, time.Now())
	if err := s.writeRecord(d.Room, fileRecord{Op: "append", Message: &m}); err != nil {
		return nil, unavailable("append message", err)
	}
	r.seq = m.Seq
	r.messages = append(r.messages, m)
	s.index[m.ID] = d.Room
	return &m, nil
}

// ListByRoom implements MessageStore.
func (s *FileStore) ListByRoom(ctx context.Context, room string) (msgs []domain.Message, err error) {
	defer func(start time.Time) { observe(backendFile, "list", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[room]
	if !ok {
		return []domain.Message{}, nil
	}
	out := make([]domain.Message, len(r.messages))
	copy(out, r.messages)
	return out, nil
}

// DeleteByID implements MessageStore.
func (s *FileStore) DeleteByID(ctx context.Context, room, id, requesterID string) (err error) {
	defer func(start time.Time) { observe(backendFile, "delete", start, err) }(time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.index[id]; !ok || owner != room {
		return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
	}
	for _, m := range s.rooms[room].messages {
		if m.ID != id {
			continue
		}
		if m.AuthorID != requesterID {
			return fmt.Errorf("message %s: %w", id, domain.ErrForbidden)
		}
		if err := s.writeRecord(room, fileRecord{Op: "delete", ID: id}); err != nil {
			return unavailable("delete message", err)
		}
		s.removeLocked(room, id)
		return nil
	}
	return fmt.Errorf("message %s: %w", id, domain.ErrNotFound)
}

func (s *FileStore) removeLocked(room, id string) {
	r, ok := s.rooms[room]
	if !ok {
		return
	}
	for i, m := range r.messages {
		if m.ID == id {
			r.messages = append(r.messages[:i], r.messages[i+1:]...)
			break
		}
	}
	delete(s.index, id)
}

// Close implements MessageStore. Every write is already synced.
func (s *FileStore) Close() error { return nil }
