package timestamp

import (
	"strconv"
	"strings"
	"time"
)

// layouts are tried in order for textual timestamps.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05,999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC1123Z,
	time.RFC1123,
}

// Parser resolves journal timestamps into time.Time values. Layouts
// without a zone are read as UTC.
type Parser struct {
	loc *time.Location
}

func NewParser() *Parser {
	return &Parser{loc: time.UTC}
}

// ParseTimestamp converts v into a time. v is a value as decoded from JSON:
// numbers and numeric strings are epoch values whose unit is picked by
// magnitude (journald's __REALTIME_TIMESTAMP is microseconds); other
// strings are tried against the known layouts.
func (p *Parser) ParseTimestamp(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		return p.parseString(val)
	case float64:
		return parseUnix(int64(val))
	}
	return time.Time{}, false
}

// Resolve returns the parsed value of v, or fallback when v is not a timestamp.
func (p *Parser) Resolve(v any, fallback time.Time) time.Time {
	if ts, ok := p.ParseTimestamp(v); ok {
		return ts.UTC()
	}
	return fallback.UTC()
}

func (p *Parser) parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return parseUnix(n)
	}
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func parseUnix(n int64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	switch {
	case n < 1e11:
		return time.Unix(n, 0).UTC(), true
	case n < 1e14:
		return time.UnixMilli(n).UTC(), true
	case n < 1e17:
		return time.UnixMicro(n).UTC(), true
	default:
		return time.Unix(0, n).UTC(), true
	}
}
