package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"streamline/internal/domain"
)

func TestBadgeFor(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		due   time.Time
		badge domain.Badge
		days  int
	}{
		{"a day late", now.Add(-24 * time.Hour), domain.BadgeOverdue, -1},
		{"an hour late", now.Add(-time.Hour), domain.BadgeOverdue, 0},
		{"twelve hours left", now.Add(12 * time.Hour), domain.BadgeDueSoon, 1},
		{"exactly one day", now.Add(24 * time.Hour), domain.BadgeDueSoon, 1},
		{"a day and a minute", now.Add(24*time.Hour + time.Minute), domain.BadgeActive, 2},
		{"five days", now.Add(5 * 24 * time.Hour), domain.BadgeActive, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := domain.Stream{DueAt: tc.due, Status: domain.StatusActive}
			v := View(s, now)
			assert.Equal(t, tc.badge, v.Badge)
			assert.Equal(t, tc.days, v.DaysRemaining)
		})
	}
}

func TestBadgeForCompleted(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := domain.Stream{DueAt: now.Add(-48 * time.Hour), Status: domain.StatusCompleted}
	assert.Equal(t, domain.BadgeCompleted, BadgeFor(s, now))
}

func TestPublicIDShape(t *testing.T) {
	id, err := NewPublicID()
	assert.NoError(t, err)
	assert.Len(t, id, PublicIDLength)
	assert.True(t, ValidPublicID(id))
	assert.False(t, ValidPublicID("abc12345"))
	assert.False(t, ValidPublicID("ABC1234"))
	assert.Equal(t, "AB12CD34", NormalizePublicID(" ab12cd34 "))
}

func TestTomorrowWindow(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	now := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC) // Feb 28 22:00 in New York
	start, end := TomorrowWindow(now, loc)
	assert.Equal(t, time.Date(2025, 3, 1, 5, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 3, 2, 5, 0, 0, 0, time.UTC), end)

	start, end = TomorrowWindow(now, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), end)
}
