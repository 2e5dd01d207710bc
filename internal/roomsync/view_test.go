package roomsync

import (
	"fmt"
	"testing"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testMessage(room string, seq int64, author string) domain.Message {
	return domain.Message{
		ID:        fmt.Sprintf("m%02d", seq),
		Room:      room,
		Seq:       seq,
		AuthorID:  author,
		Body:      fmt.Sprintf("message %d", seq),
		CreatedAt: baseTime.Add(time.Duration(seq) * time.Second),
	}
}

func viewIDs(v *RoomView) []string {
	ids := make([]string, 0, v.Len())
	for _, m := range v.Messages() {
		ids = append(ids, m.ID)
	}
	return ids
}

func permutations(n int) [][]int {
	if n == 1 {
		return [][]int{{0}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := make([]int, 0, n)
			q = append(q, p[:i]...)
			q = append(q, n-1)
			q = append(q, p[i:]...)
			out = append(out, q)
		}
	}
	return out
}

func TestRoomView_MergeIsIdempotent(t *testing.T) {
	v := NewRoomView("general", nil)
	ev := domain.MessageEvent(testMessage("general", 1, "alice"))

	assert.True(t, v.Apply(ev))
	once := v.Messages()

	assert.False(t, v.Apply(ev), "second apply changes nothing")
	assert.Equal(t, once, v.Messages())
	assert.Equal(t, 1, v.Len())
}

func TestRoomView_OrderIndependentOfArrival(t *testing.T) {
	msgs := []domain.Message{
		testMessage("general", 1, "alice"),
		testMessage("general", 2, "bob"),
		testMessage("general", 3, "alice"),
		testMessage("general", 4, "carol"),
	}
	want := []string{"m01", "m02", "m03", "m04"}

	for _, perm := range permutations(len(msgs)) {
		v := NewRoomView("general", nil)
		for _, i := range perm {
			v.Apply(domain.MessageEvent(msgs[i]))
		}
		require.Equal(t, want, viewIDs(v), "arrival order %v", perm)
	}
}

func TestRoomView_HistoryIsSortedAndDeduplicated(t *testing.T) {
	history := []domain.Message{
		testMessage("general", 3, "a"),
		testMessage("general", 1, "a"),
		testMessage("general", 2, "a"),
		testMessage("general", 1, "a"),
	}

	v := NewRoomView("general", history)

	assert.Equal(t, []string{"m01", "m02", "m03"}, viewIDs(v))
}

func TestRoomView_TiesBreakOnTimeThenID(t *testing.T) {
	a := domain.Message{ID: "b", Room: "r", Seq: 1, CreatedAt: baseTime}
	b := domain.Message{ID: "a", Room: "r", Seq: 1, CreatedAt: baseTime}
	c := domain.Message{ID: "c", Room: "r", Seq: 1, CreatedAt: baseTime.Add(-time.Second)}

	v := NewRoomView("r", []domain.Message{a, b, c})

	assert.Equal(t, []string{"c", "a", "b"}, viewIDs(v))
}

func TestRoomView_Delete(t *testing.T) {
	v := NewRoomView("general", []domain.Message{testMessage("general", 1, "a"), testMessage("general", 2, "a")})

	assert.True(t, v.Apply(domain.DeleteEvent("general", "m01")))
	assert.False(t, v.Apply(domain.DeleteEvent("general", "m01")), "already gone")
	assert.False(t, v.Apply(domain.DeleteEvent("general", "missing")))
	assert.Equal(t, []string{"m02"}, viewIDs(v))

	// A deleted id can come back only as a new insert.
	assert.True(t, v.Insert(testMessage("general", 1, "a")))
	assert.Equal(t, []string{"m01", "m02"}, viewIDs(v))
}

func TestRoomView_PresenceKeepsNewestSnapshot(t *testing.T) {
	v := NewRoomView("general", nil)

	assert.True(t, v.Apply(domain.PresenceEvent("general", []string{"bob", "alice"}, 5)))
	assert.Equal(t, []string{"alice", "bob"}, v.Online())

	assert.False(t, v.Apply(domain.PresenceEvent("general", []string{"alice"}, 3)), "older snapshot is discarded")
	assert.False(t, v.Apply(domain.PresenceEvent("general", []string{"alice"}, 5)), "same sequence is discarded")
	assert.Equal(t, []string{"alice", "bob"}, v.Online())

	assert.True(t, v.Apply(domain.PresenceEvent("general", []string{}, 6)))
	assert.Empty(t, v.Online())
	assert.Equal(t, uint64(6), v.PresenceSequence())
}

func TestRoomView_FirstSnapshotAppliesAtSequenceZero(t *testing.T) {
	v := NewRoomView("general", nil)
	assert.True(t, v.ApplyPresence([]string{"alice"}, 0))
	assert.Equal(t, []string{"alice"}, v.Online())
}

func TestRoomView_IgnoresOtherRooms(t *testing.T) {
	v := NewRoomView("general", nil)

	assert.False(t, v.Apply(domain.MessageEvent(testMessage("random", 1, "a"))))
	assert.False(t, v.Apply(domain.PresenceEvent("random", []string{"x"}, 9)))
	assert.Zero(t, v.Len())
	assert.Empty(t, v.Online())
}

func TestRoomView_CopiesAreDetached(t *testing.T) {
	v := NewRoomView("general", []domain.Message{testMessage("general", 1, "a")})

	msgs := v.Messages()
	msgs[0].Body = "changed"
	snap := v.Snapshot(StateLive)

	got, ok := v.Get("m01")
	require.True(t, ok)
	assert.Equal(t, "message 1", got.Body)
	assert.Equal(t, StateLive, snap.State)
	assert.Equal(t, "general", snap.Room)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "live", StateLive.String())

	text, err := StateLive.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "live", string(text))
}
