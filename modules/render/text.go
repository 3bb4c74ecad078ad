package render

import (
	"net/url"
	"strings"
	"time"

	"github.com/example/pulse-dashboard/domain/dashboard"
)

// DefaultTruncateLimit is the default maximum text length in runes.
const DefaultTruncateLimit = 200

// Ellipsis is appended to truncated text.
const Ellipsis = "..."

// UnknownTime is shown for missing or unparseable timestamps.
const UnknownTime = "Unknown"

// entities are the references Escape emits. An ampersand that already
// starts one of them is kept, which makes Escape idempotent.
var entities = []string{"&amp;", "&lt;", "&gt;", "&quot;", "&#39;"}

// Escape replaces markup-significant characters with entity references.
// Escape(Escape(s)) == Escape(s).
func Escape(s string) string {
	if !strings.ContainsAny(s, `&<>"'`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '&':
			if startsEntity(s[i:]) {
				b.WriteByte('&')
			} else {
				b.WriteString("&amp;")
			}
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#39;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func startsEntity(s string) bool {
	for _, e := range entities {
		if strings.HasPrefix(s, e) {
			return true
		}
	}
	return false
}

// Truncate cuts text longer than limit runes and appends Ellipsis.
// A non-positive limit selects DefaultTruncateLimit.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		limit = DefaultTruncateLimit
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + Ellipsis
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.TimeOnly,
}

// FormatTime renders a timestamp as HH:MM:SS.
func FormatTime(ts string) string {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return UnknownTime
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.Format(time.TimeOnly)
		}
	}
	return UnknownTime
}

// ChatPath returns the chat page path for username. It reports false for
// the unknown placeholder, in which case no navigation must happen.
func ChatPath(username string) (string, bool) {
	if dashboard.IsUnknownUser(username) {
		return "", false
	}
	return "/chat/" + url.PathEscape(username), true
}

func displayName(username string) string {
	if strings.TrimSpace(username) == "" {
		return dashboard.UnknownUser
	}
	return username
}
