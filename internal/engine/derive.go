package engine

import (
	"math"
	"time"

	"streamline/internal/domain"
)

const day = 24 * time.Hour

// DaysRemaining is ceil((dueAt - now) / 1 day). It goes negative once a
// stream is more than a day late.
func DaysRemaining(dueAt, now time.Time) int {
	d := math.Ceil(float64(dueAt.Sub(now)) / float64(day))
	if d == 0 {
		return 0
	}
	return int(d)
}

// BadgeFor derives the presentational label. A stream past its due time is
// overdue even while less than a whole day late.
func BadgeFor(s domain.Stream, now time.Time) domain.Badge {
	if s.Status == domain.StatusCompleted {
		return domain.BadgeCompleted
	}
	if s.DueAt.Before(now) {
		return domain.BadgeOverdue
	}
	if DaysRemaining(s.DueAt, now) <= 1 {
		return domain.BadgeDueSoon
	}
	return domain.BadgeActive
}

func View(s domain.Stream, now time.Time) domain.StreamView {
	return domain.StreamView{
		Stream:        s,
		DaysRemaining: DaysRemaining(s.DueAt, now),
		Badge:         BadgeFor(s, now),
	}
}
