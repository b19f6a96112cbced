package prettydate_test

import (
	"testing"
	"time"

	"planet/prettydate"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		elapsed  time.Duration
		expected string
	}{
		{
			name:     "moments ago",
			elapsed:  3 * time.Second,
			expected: "just now",
		},
		{
			name:     "seconds",
			elapsed:  45 * time.Second,
			expected: "45 seconds ago",
		},
		{
			name:     "exactly a minute",
			elapsed:  60 * time.Second,
			expected: "a minute ago",
		},
		{
			name:     "just under two minutes",
			elapsed:  119 * time.Second,
			expected: "a minute ago",
		},
		{
			name:     "minutes",
			elapsed:  31 * time.Minute,
			expected: "31 minutes ago",
		},
		{
			name:     "exactly an hour",
			elapsed:  time.Hour,
			expected: "an hour ago",
		},
		{
			name:     "just under two hours",
			elapsed:  2*time.Hour - time.Second,
			expected: "an hour ago",
		},
		{
			name:     "hours",
			elapsed:  5 * time.Hour,
			expected: "5 hours ago",
		},
		{
			name:     "end of the same day",
			elapsed:  24*time.Hour - time.Second,
			expected: "23 hours ago",
		},
		{
			name:     "one day",
			elapsed:  24 * time.Hour,
			expected: "Yesterday",
		},
		{
			name:     "almost two days still yesterday",
			elapsed:  48*time.Hour - time.Second,
			expected: "Yesterday",
		},
		{
			name:     "days",
			elapsed:  4 * 24 * time.Hour,
			expected: "4 days ago",
		},
		{
			name:     "one week",
			elapsed:  7 * 24 * time.Hour,
			expected: "1 weeks ago",
		},
		{
			name:     "weeks",
			elapsed:  20 * 24 * time.Hour,
			expected: "2 weeks ago",
		},
		{
			name:     "months",
			elapsed:  90 * 24 * time.Hour,
			expected: "3 months ago",
		},
		{
			name:     "just under a year",
			elapsed:  364 * 24 * time.Hour,
			expected: "12 months ago",
		},
		{
			name:     "years",
			elapsed:  800 * 24 * time.Hour,
			expected: "2 years ago",
		},
		{
			name:     "future time",
			elapsed:  -time.Minute,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := prettydate.Format(now, now.Add(-tt.elapsed))
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestFormatZeroTime(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "just now", prettydate.Format(now, time.Time{}))
}
