package article

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses the date formats seen across providers.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders t as RFC 3339 in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// NormalizeDate converts a provider date to RFC 3339 when it parses. An
// unparseable value is kept verbatim; an empty one becomes the fetch time, so
// the field is never empty.
func NormalizeDate(raw string, fetchedAt time.Time) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FormatDate(fetchedAt)
	}
	if t, ok := ParseDate(raw); ok {
		return FormatDate(t)
	}
	return raw
}
