package logger

import (
	"fmt"
	"regexp"
	"time"
)

var (
	emailPattern  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`)
	uuidPattern   = regexp.MustCompile(`(?i)\b([0-9a-f]{8})-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
)

// Scrub masks emails, bearer tokens and UUID bodies inside s.
// UUIDs keep their first segment so log lines stay correlatable.
func Scrub(s string) string {
	if s == "" {
		return s
	}
	s = bearerPattern.ReplaceAllString(s, "Bearer [redacted]")
	s = emailPattern.ReplaceAllString(s, "[email]")
	s = uuidPattern.ReplaceAllString(s, "$1-****")
	return s
}

// ScrubValues returns a copy of a zap-style key/value list with every
// string-like value scrubbed. Numbers, bools and durations pass through.
func ScrubValues(values []any) []any {
	if len(values) == 0 {
		return values
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = scrubValue(v)
	}
	return out
}

func scrubValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return Scrub(t)
	case []byte:
		return Scrub(string(t))
	case error:
		return Scrub(t.Error())
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64,
		time.Duration, time.Time:
		return v
	case fmt.Stringer:
		return Scrub(t.String())
	default:
		return v
	}
}
