package stash

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// ISO8601UTCPattern matches the UTC timestamps accepted in representations.
const ISO8601UTCPattern = `^\d{4}-\d{2}-\d{2}(\s|T)\d{2}:\d{2}:\d{2}(\.\d{3,6})?(Z|\+00|\+0000|\+00:00)$`

var iso8601UTC = regexp.MustCompile(ISO8601UTCPattern)

const (
	layoutSeconds = "2006-01-02T15:04:05Z"
	layoutMicros  = "2006-01-02T15:04:05.000000Z"
)

// MaxTTL is the largest TTL, in seconds, that ResolveExpiry can represent.
const MaxTTL = int64(math.MaxInt64 / int64(time.Second))

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// ResolveExpiry converts a relative TTL into an absolute UTC instant.
// Returns nil when ttl is nil. ttl must be in [1, MaxTTL].
func ResolveExpiry(now time.Time, ttl *int64) *time.Time {
	if ttl == nil {
		return nil
	}
	at := now.UTC().Add(time.Duration(*ttl) * time.Second).Truncate(time.Microsecond)
	return &at
}

// FormatUTC renders t as an ISO-8601 UTC string with a Z suffix.
// Fractional seconds are emitted only when non-zero, at microsecond precision.
func FormatUTC(t time.Time) string {
	t = t.UTC().Truncate(time.Microsecond)
	if t.Nanosecond() == 0 {
		return t.Format(layoutSeconds)
	}
	return t.Format(layoutMicros)
}

// ParseUTC parses any timestamp matching ISO8601UTCPattern.
func ParseUTC(s string) (time.Time, error) {
	if !iso8601UTC.MatchString(s) {
		return time.Time{}, fmt.Errorf("%q is not an ISO-8601 UTC timestamp", s)
	}

	norm := strings.Replace(s, " ", "T", 1)
	for _, suffix := range []string{"+00:00", "+0000", "+00"} {
		if strings.HasSuffix(norm, suffix) {
			norm = strings.TrimSuffix(norm, suffix) + "Z"
			break
		}
	}

	t, err := time.Parse(time.RFC3339Nano, norm)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
