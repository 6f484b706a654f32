package streak

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ActivityKind string

const (
	ActivityLogin      ActivityKind = "login"
	ActivityExpenseLog ActivityKind = "expense_log"
)

// Kinds lists every activity kind that keeps its own streak.
var Kinds = []ActivityKind{ActivityLogin, ActivityExpenseLog}

func ParseKind(s string) (ActivityKind, error) {
	switch ActivityKind(s) {
	case ActivityLogin, ActivityExpenseLog:
		return ActivityKind(s), nil
	}
	return "", fmt.Errorf("unknown activity kind %q", s)
}

// Streak is one user's consecutive-day counter for a single activity kind.
// LastActivityDate is a calendar date stored as midnight UTC.
type Streak struct {
	UserID           uuid.UUID    `json:"user_id" db:"user_id"`
	Kind             ActivityKind `json:"kind" db:"kind"`
	CurrentStreak    int          `json:"current_streak" db:"current_streak"`
	LongestStreak    int          `json:"longest_streak" db:"longest_streak"`
	LastActivityDate *time.Time   `json:"last_activity_date" db:"last_activity_date"`
	UpdatedAt        time.Time    `json:"updated_at" db:"updated_at"`
}

// DayOf returns the calendar date of t as observed in loc, normalised to
// midnight UTC so that day arithmetic is immune to DST transitions.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Touch registers a qualifying activity at now and reports whether the
// counter changed. Repeated activity on the same calendar day is a no-op.
func (s *Streak) Touch(now time.Time, loc *time.Location) bool {
	today := DayOf(now, loc)

	switch {
	case s.LastActivityDate == nil:
		s.CurrentStreak = 1
	case s.LastActivityDate.Equal(today):
		return false
	case s.LastActivityDate.Equal(today.AddDate(0, 0, -1)):
		s.CurrentStreak++
	default:
		// a gap of two or more days, or a clock that moved backwards
		s.CurrentStreak = 1
	}

	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	s.LastActivityDate = &today
	s.UpdatedAt = now
	return true
}

// Best returns the highest current streak across records, or 0.
func Best(records []Streak) int {
	best := 0
	for _, r := range records {
		if r.CurrentStreak > best {
			best = r.CurrentStreak
		}
	}
	return best
}
