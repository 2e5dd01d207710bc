package channel

import (
	"encoding/hex"
	"hash/fnv"
	"regexp"
	"strings"
)

var plainSegment = regexp.MustCompile(`^[a-z][a-z0-9]{0,63}$`)

// hashedPrefix marks segments derived from a hash. Plain segments contain no
// dot, so the two forms can never produce the same topic.
const hashedPrefix = "h."

// topicSegment maps a room name onto a topic-safe segment. Names that are
// already lowercase alphanumeric are used as-is; anything else is reduced
// to its alphanumeric characters, suffixed with a hash of the full name so
// "General" and "general" never share a topic, and put under hashedPrefix.
func topicSegment(room string) string {
	if plainSegment.MatchString(room) {
		return room
	}

	var b strings.Builder
	b.WriteString(hashedPrefix)
	b.WriteByte('r')
	for _, r := range strings.ToLower(room) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() > 32 {
			break
		}
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(room))
	b.WriteString(hex.EncodeToString(h.Sum(nil)))
	return b.String()
}

func topicName(namespace, room string) string {
	return namespace + "." + topicSegment(room) + ".events"
}
