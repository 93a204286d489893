package timeutil

import (
	"testing"
	"time"
)

func TestFormatAge(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero", time.Time{}, "-"},
		{"future", now.Add(time.Minute), "0s"},
		{"seconds", now.Add(-45 * time.Second), "45s"},
		{"minutes", now.Add(-12 * time.Minute), "12m"},
		{"hours", now.Add(-3*time.Hour - 20*time.Minute), "3h"},
		{"days", now.Add(-5*24*time.Hour - time.Hour), "5d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatAge(tt.t, now); got != tt.want {
				t.Errorf("FormatAge() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	if got := FormatTime(time.Time{}); got != "-" {
		t.Errorf("FormatTime(zero) = %q, want -", got)
	}

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if got := FormatTime(ts); got != ts.Local().Format(LocalTimeFormat) {
		t.Errorf("FormatTime() = %q", got)
	}
}
