package achievement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CriteriaType string

const (
	CriteriaStreak              CriteriaType = "streak"
	CriteriaChallengesCompleted CriteriaType = "challenges_completed"
	CriteriaEventsLogged        CriteriaType = "events_logged"
	CriteriaSavingsAmount       CriteriaType = "savings_amount"
	CriteriaCustom              CriteriaType = "custom"
)

// ParseCriteriaType rejects unknown criteria kinds so a typo in the catalog
// fails loudly instead of never awarding.
func ParseCriteriaType(s string) (CriteriaType, error) {
	switch c := CriteriaType(s); c {
	case CriteriaStreak, CriteriaChallengesCompleted, CriteriaEventsLogged,
		CriteriaSavingsAmount, CriteriaCustom:
		return c, nil
	}
	return "", fmt.Errorf("unknown badge criteria type %q", s)
}

type Achievement struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	Name          string       `json:"name" db:"name"`
	Description   string       `json:"description" db:"description"`
	Icon          string       `json:"icon" db:"icon"`
	Points        int          `json:"points" db:"points"`
	CriteriaType  CriteriaType `json:"criteria_type" db:"criteria_type"`
	CriteriaValue float64      `json:"criteria_value" db:"criteria_value"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

type UserAchievement struct {
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	AchievementID uuid.UUID `json:"achievement_id" db:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at" db:"unlocked_at"`
}

type AchievementWithStatus struct {
	Achievement
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// Signals is the snapshot of a user's accumulated progress that badge
// criteria are checked against.
type Signals struct {
	CurrentStreak       int
	ChallengesCompleted int
	EventsLogged        int
	MonthlyBudget       float64
	SpentThisMonth      float64
}

func (s Signals) Savings() float64 {
	return s.MonthlyBudget - s.SpentThisMonth
}

// Qualifies reports whether sig satisfies the badge criteria. Custom badges
// are only granted by an administrator and never qualify here.
func (a Achievement) Qualifies(sig Signals) (bool, error) {
	switch a.CriteriaType {
	case CriteriaStreak:
		return float64(sig.CurrentStreak) >= a.CriteriaValue, nil
	case CriteriaChallengesCompleted:
		return float64(sig.ChallengesCompleted) >= a.CriteriaValue, nil
	case CriteriaEventsLogged:
		return float64(sig.EventsLogged) >= a.CriteriaValue, nil
	case CriteriaSavingsAmount:
		return sig.Savings() >= a.CriteriaValue, nil
	case CriteriaCustom:
		return false, nil
	default:
		return false, fmt.Errorf("achievement %s: unknown criteria type %q", a.ID, a.CriteriaType)
	}
}

// Pending returns the catalog entries the user has not unlocked yet.
func Pending(catalog []Achievement, owned []UserAchievement) []Achievement {
	have := make(map[uuid.UUID]struct{}, len(owned))
	for _, o := range owned {
		have[o.AchievementID] = struct{}{}
	}

	var pending []Achievement
	for _, a := range catalog {
		if _, ok := have[a.ID]; !ok {
			pending = append(pending, a)
		}
	}
	return pending
}

// WithStatus merges the catalog with the user's unlocked set, unlocked first.
func WithStatus(catalog []Achievement, owned []UserAchievement) []*AchievementWithStatus {
	unlocked := make(map[uuid.UUID]time.Time, len(owned))
	for _, o := range owned {
		unlocked[o.AchievementID] = o.UnlockedAt
	}

	out := make([]*AchievementWithStatus, 0, len(catalog))
	for _, a := range catalog {
		ach := &AchievementWithStatus{Achievement: a}
		if at, ok := unlocked[a.ID]; ok {
			at := at
			ach.Unlocked = true
			ach.UnlockedAt = &at
		}
		out = append(out, ach)
	}

	// stable partition: unlocked entries keep their catalog order
	sorted := make([]*AchievementWithStatus, 0, len(out))
	for _, a := range out {
		if a.Unlocked {
			sorted = append(sorted, a)
		}
	}
	for _, a := range out {
		if !a.Unlocked {
			sorted = append(sorted, a)
		}
	}
	return sorted
}

// Defaults is the starter catalog seeded into an empty database.
func Defaults() []Achievement {
	return []Achievement{
		{Name: "First Step", Description: "Complete your first challenge", Icon: "🥇", Points: 10,
			CriteriaType: CriteriaChallengesCompleted, CriteriaValue: 1},
		{Name: "Consistent Saver", Description: "Keep a 3-day streak", Icon: "🔥", Points: 25,
			CriteriaType: CriteriaStreak, CriteriaValue: 3},
		{Name: "Weekly Warrior", Description: "Keep a 7-day streak", Icon: "🗓️", Points: 50,
			CriteriaType: CriteriaStreak, CriteriaValue: 7},
		{Name: "Challenge Master", Description: "Complete 5 challenges", Icon: "🏆", Points: 100,
			CriteriaType: CriteriaChallengesCompleted, CriteriaValue: 5},
		{Name: "Bookkeeper", Description: "Log 10 expenses", Icon: "📒", Points: 20,
			CriteriaType: CriteriaEventsLogged, CriteriaValue: 10},
		{Name: "Budget Keeper", Description: "Stay 100 under your monthly budget", Icon: "💰", Points: 40,
			CriteriaType: CriteriaSavingsAmount, CriteriaValue: 100},
	}
}
