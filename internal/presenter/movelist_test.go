package presenter

import (
	"testing"
	"time"
)

func TestNumberedMoves(t *testing.T) {
	if got := NumberedMoves(nil); got != "" {
		t.Fatalf("empty history: %q", got)
	}
	if got := NumberedMoves([]string{"e4", "e5", "Nf3"}); got != "1. e4 e5 2. Nf3" {
		t.Fatalf("got %q", got)
	}
	pairs := MovePairs([]string{"d4", "d5"})
	if len(pairs) != 1 || pairs[0].Number != 1 || pairs[0].Black != "d5" {
		t.Fatalf("unexpected pairs: %+v", pairs)
	}
}

func TestFormatTotalTime(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{65 * time.Second, "1:05"},
		{59*time.Minute + 59*time.Second, "59:59"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
		{26*time.Hour + 5*time.Minute + 9*time.Second, "1d 2h 5m"},
		{-time.Second, "0:00"},
	}
	for _, tc := range cases {
		if got := FormatTotalTime(tc.in); got != tc.want {
			t.Fatalf("FormatTotalTime(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatRecentMoves(t *testing.T) {
	if got := formatRecentMoves([]string{"a", "b", "c", "d", "e"}); got != "… b c d e" {
		t.Fatalf("got %q", got)
	}
}
