package expense

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMood(t *testing.T) {
	assert.Equal(t, MoodHappy, NormalizeMood("  HAPPY "))
	assert.Equal(t, MoodNeutral, NormalizeMood(""))
	assert.Equal(t, MoodNeutral, NormalizeMood("   "))
	assert.Equal(t, Mood("nostalgic"), NormalizeMood("Nostalgic"))
}

func TestMoodKnown(t *testing.T) {
	for _, m := range []Mood{MoodHappy, MoodSad, MoodStressed, MoodBored, MoodExcited, MoodAngry, MoodRelaxed, MoodNeutral, MoodOther} {
		assert.True(t, m.Known(), m)
	}
	assert.False(t, Mood("nostalgic").Known())
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, "food", NormalizeCategory(" Food"))
	assert.Equal(t, DefaultCategory, NormalizeCategory(""))
}
