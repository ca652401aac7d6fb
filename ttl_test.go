package stash

import (
	"testing"
	"time"
)

func TestResolveExpiry(t *testing.T) {
	if got := ResolveExpiry(testEpoch, nil); got != nil {
		t.Errorf("ResolveExpiry(nil) = %v, want nil", got)
	}

	ttl := int64(60)
	local := testEpoch.In(time.FixedZone("CEST", 2*60*60))
	got := ResolveExpiry(local.Add(1234*time.Nanosecond), &ttl)
	want := testEpoch.Add(time.Minute + time.Microsecond)
	if got == nil || !got.Equal(want) {
		t.Fatalf("ResolveExpiry() = %v, want %v", got, want)
	}
	if got.Location() != time.UTC {
		t.Errorf("Location() = %v, want UTC", got.Location())
	}
}

func TestResolveExpiry_MaxTTL(t *testing.T) {
	ttl := MaxTTL
	got := ResolveExpiry(testEpoch, &ttl)
	if got == nil || !got.After(testEpoch) {
		t.Fatalf("ResolveExpiry(MaxTTL) = %v, want after %v", got, testEpoch)
	}
	if want := testEpoch.Add(time.Duration(MaxTTL) * time.Second); !got.Equal(want.Truncate(time.Microsecond)) {
		t.Errorf("ResolveExpiry(MaxTTL) = %v, want %v", got, want)
	}
	if MaxTTL != 9223372036 {
		t.Errorf("MaxTTL = %d, want 9223372036", MaxTTL)
	}
}

func TestFormatUTC(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"whole seconds", testEpoch.Add(time.Minute), "2024-01-01T00:01:00Z"},
		{"micros", testEpoch.Add(1500 * time.Microsecond), "2024-01-01T00:00:00.001500Z"},
		{"sub-micro dropped", testEpoch.Add(999 * time.Nanosecond), "2024-01-01T00:00:00Z"},
		{"offset converted", time.Date(2024, 1, 1, 2, 0, 0, 0, time.FixedZone("", 2*60*60)), "2024-01-01T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatUTC(tt.in); got != tt.want {
				t.Errorf("FormatUTC() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseUTC(t *testing.T) {
	want := testEpoch.Add(time.Minute)
	valid := []string{
		"2024-01-01T00:01:00Z",
		"2024-01-01 00:01:00Z",
		"2024-01-01T00:01:00+00",
		"2024-01-01T00:01:00+0000",
		"2024-01-01T00:01:00+00:00",
		"2024-01-01T00:01:00.000Z",
		"2024-01-01T00:01:00.000000+00:00",
	}
	for _, s := range valid {
		t.Run(s, func(t *testing.T) {
			got, err := ParseUTC(s)
			if err != nil {
				t.Fatalf("ParseUTC() error: %v", err)
			}
			if !got.Equal(want) {
				t.Errorf("ParseUTC() = %v, want %v", got, want)
			}
		})
	}

	invalid := []string{
		"",
		"2024-01-01",
		"2024-01-01T00:01:00",
		"2024-01-01T00:01:00+02:00",
		"2024-01-01T00:01:00.1Z",
		"2024-13-01T00:01:00Z",
	}
	for _, s := range invalid {
		if _, err := ParseUTC(s); err == nil {
			t.Errorf("ParseUTC(%q) should fail", s)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	in := testEpoch.Add(42*time.Second + 123456*time.Microsecond)
	out, err := ParseUTC(FormatUTC(in))
	if err != nil {
		t.Fatalf("ParseUTC() error: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
}
