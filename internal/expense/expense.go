package expense

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Mood string

const (
	MoodHappy    Mood = "happy"
	MoodSad      Mood = "sad"
	MoodStressed Mood = "stressed"
	MoodBored    Mood = "bored"
	MoodExcited  Mood = "excited"
	MoodAngry    Mood = "angry"
	MoodRelaxed  Mood = "relaxed"
	MoodNeutral  Mood = "neutral"
	MoodOther    Mood = "other"
)

const DefaultCategory = "other"

var knownMoods = map[Mood]struct{}{
	MoodHappy: {}, MoodSad: {}, MoodStressed: {}, MoodBored: {}, MoodExcited: {},
	MoodAngry: {}, MoodRelaxed: {}, MoodNeutral: {}, MoodOther: {},
}

// NormalizeMood lower-cases and trims m; an empty mood becomes neutral.
func NormalizeMood(m string) Mood {
	m = strings.ToLower(strings.TrimSpace(m))
	if m == "" {
		return MoodNeutral
	}
	return Mood(m)
}

func (m Mood) Known() bool {
	_, ok := knownMoods[m]
	return ok
}

func NormalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return DefaultCategory
	}
	return c
}

// Expense is one mood-tagged spending event. Edits and deletes change the
// ledger only; streaks, challenge progress and badges already earned from
// the original entry stand.
type Expense struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	Amount     float64   `json:"amount" db:"amount"`
	Mood       Mood      `json:"mood" db:"mood"`
	Category   string    `json:"category" db:"category"`
	OccurredAt time.Time `json:"date" db:"occurred_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type CreateExpenseRequest struct {
	Amount   float64    `json:"amount" validate:"required,gt=0"`
	Mood     string     `json:"mood,omitempty" validate:"max=32"`
	Category string     `json:"category,omitempty" validate:"max=64"`
	Date     *time.Time `json:"date,omitempty"`
}

// UpdateExpenseRequest replaces the editable fields of an expense. An empty
// mood or category falls back to the defaults; a missing date keeps the
// stored one.
type UpdateExpenseRequest struct {
	Amount   float64    `json:"amount" validate:"required,gt=0"`
	Mood     string     `json:"mood,omitempty" validate:"max=32"`
	Category string     `json:"category,omitempty" validate:"max=64"`
	Date     *time.Time `json:"date,omitempty"`
}
