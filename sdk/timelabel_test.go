package sdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeLabel(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	// Thursday
	now := time.Date(2026, 3, 12, 9, 30, 0, 0, loc)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"zero", time.Time{}, ""},
		{"earlier today", time.Date(2026, 3, 12, 0, 5, 0, 0, loc), "00:05"},
		{"later today", time.Date(2026, 3, 12, 23, 59, 0, 0, loc), "23:59"},
		{"yesterday late", time.Date(2026, 3, 11, 23, 59, 0, 0, loc), "Yesterday"},
		{"yesterday early", time.Date(2026, 3, 11, 0, 1, 0, 0, loc), "Yesterday"},
		{"two days back", time.Date(2026, 3, 10, 12, 0, 0, 0, loc), "Tuesday"},
		{"six days back", time.Date(2026, 3, 6, 12, 0, 0, 0, loc), "Friday"},
		{"seven days back", time.Date(2026, 3, 5, 12, 0, 0, 0, loc), "3/5/2026"},
		{"last year", time.Date(2025, 12, 31, 12, 0, 0, 0, loc), "12/31/2025"},
		{"tomorrow", time.Date(2026, 3, 13, 8, 0, 0, 0, loc), "3/13/2026"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeLabel(tt.at, now))
		})
	}
}

func TestTimeLabel_UsesNowLocation(t *testing.T) {
	loc := time.FixedZone("east", 10*3600)
	now := time.Date(2026, 3, 12, 9, 0, 0, 0, loc)
	// 23:30 UTC on the 11th is 09:30 on the 12th in loc
	at := time.Date(2026, 3, 11, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, "09:30", TimeLabel(at, now))
}
