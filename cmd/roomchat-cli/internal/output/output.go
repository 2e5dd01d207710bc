// Package output formats CLI results as tables or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/topicmgr"
)

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// JSONLine writes v as one line of JSON.
func JSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// MessagesTable prints messages oldest first.
func MessagesTable(w io.Writer, msgs []domain.Message) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "SEQ\tTIME\tAUTHOR\tID\tBODY")
	if len(msgs) == 0 {
		fmt.Fprintln(tw, "-\t-\t-\t-\tno messages")
		return
	}
	for _, m := range msgs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			m.Seq,
			m.CreatedAt.Local().Format(time.DateTime),
			author(m),
			m.ID,
			truncate(oneLine(m.Body), 60))
	}
}

// TopicList is the JSON shape of the topics command.
type TopicList struct {
	Topics []topicmgr.RegistryEntry `json:"topics"`
	Count  int                      `json:"count"`
}

// NewTopicList wraps registry entries for JSON output.
func NewTopicList(entries []topicmgr.RegistryEntry) TopicList {
	if entries == nil {
		entries = []topicmgr.RegistryEntry{}
	}
	return TopicList{Topics: entries, Count: len(entries)}
}

// TopicsTable prints registry entries.
func TopicsTable(w io.Writer, entries []topicmgr.RegistryEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "NAME\tNAMESPACE\tROOM\tDESCRIPTION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Namespace, e.Room, truncate(e.Description, 40))
	}
}

// Frame prints one websocket frame as a human-readable line.
func Frame(w io.Writer, f domain.Frame) {
	switch f.Kind {
	case domain.FrameHello:
		if f.Session != nil {
			fmt.Fprintf(w, "* signed in as %s in #%s\n", f.Session.Name(), f.Room)
		}
	case domain.FrameState:
		if f.Error != "" {
			fmt.Fprintf(w, "* %s (%s: %s)\n", f.State, f.Code, f.Error)
			return
		}
		fmt.Fprintf(w, "* %s\n", f.State)
	case domain.FrameHistory:
		fmt.Fprintf(w, "* history: %d messages\n", len(f.Messages))
		for _, m := range f.Messages {
			message(w, m)
		}
	case domain.KindMessage:
		if f.Message != nil {
			message(w, *f.Message)
		}
	case domain.KindDelete:
		fmt.Fprintf(w, "* message %s deleted\n", f.MessageID)
	case domain.KindPresence:
		n := len(f.ParticipantIDs)
		if f.Count != nil {
			n = *f.Count
		}
		fmt.Fprintf(w, "* %d online: %s\n", n, strings.Join(f.ParticipantIDs, ", "))
	case domain.FrameError:
		fmt.Fprintf(w, "! %s: %s\n", f.Code, f.Error)
	}
}

func message(w io.Writer, m domain.Message) {
	fmt.Fprintf(w, "[%s] <%s> %s\n", m.CreatedAt.Local().Format(time.TimeOnly), author(m), m.Body)
}

func author(m domain.Message) string {
	if m.AuthorName != "" {
		return m.AuthorName
	}
	return m.AuthorID
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
