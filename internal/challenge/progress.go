package challenge

import "spendSmartAPI/internal/expense"

const (
	PositiveDelta = 10
	NegativeDelta = -10
)

var positiveMoods = map[expense.Mood]struct{}{
	expense.MoodHappy:   {},
	expense.MoodExcited: {},
	expense.MoodRelaxed: {},
}

// ScoreFor maps a mood to the progress delta it earns. Anything outside the
// positive set, including moods this build has never heard of, scores negative.
func ScoreFor(mood expense.Mood) int {
	if _, ok := positiveMoods[mood]; ok {
		return PositiveDelta
	}
	return NegativeDelta
}
