// Package batch turns a range specification into a sequence of per-item
// transfers and reduces the outcomes to a summary.
package batch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/you-humble/chatmover/internal/domain"
)

// Spec is a parsed range specification: a source chat, an optional topic
// filter, and an inclusive id range. A single id parses to a range of
// length 1.
type Spec struct {
	Chat   domain.ChatID
	Thread int64
	From   int64
	To     int64
}

// Len is the number of ids in the range. Never below 1.
func (s Spec) Len() int {
	if s.To < s.From {
		return 1
	}
	return int(s.To-s.From) + 1
}

// A dash joining two integers anywhere in the text wins over the trailing
// path segment, so "c/1234/101 - 120" parses as a range, not as id 120.
var rangeRe = regexp.MustCompile(`(\d+)\s*-\s*(\d+)`)

// IsInviteLink reports whether the specification is a chat invite link
// rather than a message reference.
func IsInviteLink(raw string) bool {
	return strings.Contains(raw, "t.me/+") || strings.Contains(raw, "t.me/joinchat/")
}

// ParseSpec parses the link forms accepted as a range specification:
//
//	https://t.me/<username>/<id>
//	https://t.me/<username>/<from>-<to>
//	https://t.me/c/<internal-id>/<id or range>        private chat
//	https://t.me/c/<internal-id>/<topic>/<id or range> topic thread
func ParseSpec(raw string) (Spec, error) {
	text := strings.TrimSpace(raw)

	clean := text
	clean = strings.TrimPrefix(clean, "https://")
	clean = strings.TrimPrefix(clean, "http://")
	clean = strings.TrimPrefix(clean, "t.me/")

	private := strings.HasPrefix(clean, "c/")
	clean = strings.TrimPrefix(clean, "c/")

	parts := strings.Split(clean, "/")
	if len(parts) < 2 || parts[0] == "" {
		return Spec{}, fmt.Errorf("parse spec %q: missing chat or message id", raw)
	}

	var spec Spec
	if private {
		if _, err := strconv.ParseInt(parts[0], 10, 64); err != nil {
			return Spec{}, fmt.Errorf("parse spec %q: private chat id is not numeric", raw)
		}
		spec.Chat = domain.ChatID("-100" + parts[0])
	} else {
		spec.Chat = domain.ChatID(parts[0])
	}

	// A numeric middle segment is a topic filter: t.me/c/<chat>/<topic>/<id>.
	if len(parts) >= 3 {
		if t, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
			spec.Thread = t
		}
	}

	if m := rangeRe.FindStringSubmatch(text); m != nil && strings.Contains(text, "-") {
		spec.From, _ = strconv.ParseInt(m[1], 10, 64)
		spec.To, _ = strconv.ParseInt(m[2], 10, 64)
	} else {
		last := strings.TrimSpace(parts[len(parts)-1])
		id, err := strconv.ParseInt(last, 10, 64)
		if err != nil {
			return Spec{}, fmt.Errorf("parse spec %q: message id %q: %w", raw, last, err)
		}
		spec.From, spec.To = id, id
	}

	if spec.To < spec.From {
		spec.From, spec.To = spec.To, spec.From
	}
	if spec.From <= 0 {
		return Spec{}, fmt.Errorf("parse spec %q: message ids start at 1", raw)
	}

	return spec, nil
}
