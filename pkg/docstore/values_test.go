package docstore

import (
	"reflect"
	"testing"
	"time"
)

func TestCanonicalValue(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 5, time.FixedZone("WIB", 7*3600))
	at := time.Date(2026, 3, 1, 17, 0, 0, 0, time.FixedZone("WIB", 7*3600))

	cases := []struct {
		name string
		in   any
		want any
	}{
		{"server timestamp", ServerTimestamp, "2026-03-01T03:00:00.000000005Z"},
		{"time", at, "2026-03-01T10:00:00.000000000Z"},
		{"time pointer", &at, "2026-03-01T10:00:00.000000000Z"},
		{"nil time pointer", (*time.Time)(nil), nil},
		{"int", 3, 3.0},
		{"struct", struct {
			Lat float64 `json:"lat"`
		}{1.5}, map[string]any{"lat": 1.5}},
	}
	for _, tc := range cases {
		if got := canonicalValue(tc.in, now); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: expected %#v got %#v", tc.name, tc.want, got)
		}
	}
}

func TestCompareValues(t *testing.T) {
	cases := []struct {
		a, b any
		want int
	}{
		{nil, nil, 0},
		{nil, false, -1},
		{false, true, -1},
		{true, 0.0, -1},
		{2.0, 1.5, 1},
		{9.0, "a", -1},
		{"a", "b", -1},
		{"b", "b", 0},
		{[]any{"x"}, "z", 1},
	}
	for _, tc := range cases {
		if got := compareValues(tc.a, tc.b); got != tc.want {
			t.Errorf("compareValues(%#v, %#v) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestFixedWidthTimesSortLexically(t *testing.T) {
	early := canonicalValue(time.Date(2026, 1, 1, 0, 0, 0, 900000000, time.UTC), time.Time{})
	late := canonicalValue(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC), time.Time{})
	if got := compareValues(early, late); got != -1 {
		t.Fatalf("expected %v before %v got %d", early, late, got)
	}
}
