package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d, h int, loc *time.Location) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, loc)
}

func TestTouchFirstActivityStartsAtOne(t *testing.T) {
	s := &Streak{}

	changed := s.Touch(day(2024, 1, 1, 9, time.UTC), time.UTC)

	assert.True(t, changed)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.LongestStreak)
	require.NotNil(t, s.LastActivityDate)
	assert.Equal(t, day(2024, 1, 1, 0, time.UTC), *s.LastActivityDate)
}

func TestTouchSameDayIsIdempotent(t *testing.T) {
	s := &Streak{}
	s.Touch(day(2024, 1, 1, 0, time.UTC), time.UTC)

	changed := s.Touch(day(2024, 1, 1, 23, time.UTC), time.UTC)

	assert.False(t, changed)
	assert.Equal(t, 1, s.CurrentStreak)
}

func TestTouchAcrossMidnightIncrements(t *testing.T) {
	s := &Streak{}
	s.Touch(time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC), time.UTC)

	// two seconds later, but a new calendar day
	s.Touch(time.Date(2024, 1, 2, 0, 0, 1, 0, time.UTC), time.UTC)

	assert.Equal(t, 2, s.CurrentStreak)
}

func TestTouchMoreThan24hApartOnConsecutiveDaysIncrements(t *testing.T) {
	s := &Streak{}
	s.Touch(day(2024, 1, 1, 0, time.UTC), time.UTC)

	// 47 hours later is still the next calendar day
	s.Touch(time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC), time.UTC)

	assert.Equal(t, 2, s.CurrentStreak)
}

func TestTouchGapResets(t *testing.T) {
	s := &Streak{}
	s.Touch(day(2024, 1, 1, 12, time.UTC), time.UTC)
	s.Touch(day(2024, 1, 2, 12, time.UTC), time.UTC)

	s.Touch(day(2024, 1, 5, 12, time.UTC), time.UTC)

	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 2, s.LongestStreak)
}

func TestTouchUsesConfiguredTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s := &Streak{}
	// 2024-01-01 22:00 in New York is already 2024-01-02 in UTC
	s.Touch(time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC), ny)
	s.Touch(time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC), ny)

	assert.Equal(t, 2, s.CurrentStreak)
	assert.Equal(t, day(2024, 1, 2, 0, time.UTC), *s.LastActivityDate)
}

func TestTouchAcrossDaylightSavingShift(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s := &Streak{}
	// the night of 2024-03-10 is only 23 hours long in New York
	s.Touch(time.Date(2024, 3, 9, 23, 30, 0, 0, ny), ny)
	s.Touch(time.Date(2024, 3, 10, 23, 30, 0, 0, ny), ny)
	s.Touch(time.Date(2024, 3, 11, 0, 30, 0, 0, ny), ny)

	assert.Equal(t, 3, s.CurrentStreak)
}

func TestTouchScenarioThreeDaysThenGap(t *testing.T) {
	s := &Streak{}
	for _, d := range []int{1, 2, 3} {
		s.Touch(day(2024, 1, d, 10, time.UTC), time.UTC)
	}
	require.Equal(t, 3, s.CurrentStreak)

	s.Touch(day(2024, 1, 6, 10, time.UTC), time.UTC)

	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 3, s.LongestStreak)
}

func TestLongestStreakNeverDecreases(t *testing.T) {
	s := &Streak{}
	start := day(2024, 1, 1, 8, time.UTC)
	offsets := []int{0, 1, 2, 5, 6, 6, 20, 21, 22, 23, 40, 39, 41}

	prev := 0
	for _, off := range offsets {
		s.Touch(start.AddDate(0, 0, off), time.UTC)
		assert.GreaterOrEqual(t, s.LongestStreak, prev)
		assert.GreaterOrEqual(t, s.LongestStreak, s.CurrentStreak)
		prev = s.LongestStreak
	}
	assert.Equal(t, 4, s.LongestStreak)
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("login")
	require.NoError(t, err)
	assert.Equal(t, ActivityLogin, kind)

	_, err = ParseKind("jogging")
	assert.Error(t, err)
}

func TestBest(t *testing.T) {
	assert.Equal(t, 0, Best(nil))
	assert.Equal(t, 4, Best([]Streak{{CurrentStreak: 2}, {CurrentStreak: 4}}))
}
