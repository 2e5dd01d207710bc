package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/topicmgr"
	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "caf", truncate("café au lait", 3))
}

func TestMessagesTable(t *testing.T) {
	var buf bytes.Buffer
	MessagesTable(&buf, []domain.Message{{
		ID: "01J", Seq: 7, AuthorID: "alice", AuthorName: "Alice",
		Body: "hello\nworld", CreatedAt: time.Now(),
	}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Alice")
	assert.Contains(t, lines[1], "hello world")

	buf.Reset()
	MessagesTable(&buf, nil)
	assert.Contains(t, buf.String(), "no messages")
}

func TestFrame(t *testing.T) {
	two := 2
	tests := []struct {
		frame domain.Frame
		want  string
	}{
		{domain.Frame{Kind: domain.FrameHello, Room: "general", Session: &domain.Session{ParticipantID: "alice"}}, "signed in as alice in #general"},
		{domain.Frame{Kind: domain.FrameState, State: "live"}, "* live"},
		{domain.Frame{Kind: domain.FrameState, State: "disconnected", Code: "room_unavailable", Error: "boom"}, "room_unavailable: boom"},
		{domain.Frame{Kind: domain.KindMessage, Message: &domain.Message{AuthorID: "bob", Body: "hi"}}, "<bob> hi"},
		{domain.Frame{Kind: domain.KindDelete, MessageID: "m1"}, "message m1 deleted"},
		{domain.Frame{Kind: domain.KindPresence, ParticipantIDs: []string{"alice", "bob"}, Count: &two}, "2 online: alice, bob"},
		{domain.Frame{Kind: domain.FrameError, Code: "forbidden", Error: "nope"}, "! forbidden: nope"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		Frame(&buf, tt.frame)
		assert.Contains(t, buf.String(), tt.want)
	}
}

func TestTopics(t *testing.T) {
	entries := []topicmgr.RegistryEntry{{Name: "room.abc.events", Namespace: "room", Room: "general"}}
	var buf bytes.Buffer
	TopicsTable(&buf, entries)
	assert.Contains(t, buf.String(), "room.abc.events")

	assert.Equal(t, 0, NewTopicList(nil).Count)
	assert.Equal(t, 1, NewTopicList(entries).Count)
}
