package telegram

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkzntsv/kettlebell/models"
)

func TestParseWeights(t *testing.T) {
	testCases := []struct {
		input    string
		expected []int
		wantErr  bool
	}{
		{"16, 24", []int{16, 24}, false},
		{"16 24 32", []int{16, 24, 32}, false},
		{"16кг, 24кг", []int{16, 24}, false},
		{"24", []int{24}, false},
		{"шестнадцать", nil, true},
		{"", nil, true},
		{"16, пудовая", nil, true},
	}

	for _, tc := range testCases {
		weights, err := parseWeights(tc.input)
		if tc.wantErr {
			assert.Errorf(t, err, "input %q", tc.input)
			continue
		}
		require.NoErrorf(t, err, "input %q", tc.input)
		assert.Equal(t, tc.expected, weights)
	}
}

func TestParseExperience(t *testing.T) {
	level, ok := parseExperience("Новичок")
	assert.True(t, ok)
	assert.Equal(t, models.ExperienceBeginner, level)

	level, ok = parseExperience("  любитель ")
	assert.True(t, ok)
	assert.Equal(t, models.ExperienceAmateur, level)

	level, ok = parseExperience("ПРОФИ")
	assert.True(t, ok)
	assert.Equal(t, models.ExperiencePro, level)

	_, ok = parseExperience("мастер спорта")
	assert.False(t, ok)
}

func TestParsePersonalData(t *testing.T) {
	weight, gender, err := parsePersonalData("82 м")
	require.NoError(t, err)
	assert.Equal(t, 82.0, weight)
	assert.Equal(t, models.GenderMale, gender)

	weight, gender, err = parsePersonalData("65,5 ж")
	require.NoError(t, err)
	assert.Equal(t, 65.5, weight)
	assert.Equal(t, models.GenderFemale, gender)

	// Gender is optional.
	_, gender, err = parsePersonalData("70")
	require.NoError(t, err)
	assert.Equal(t, models.GenderOther, gender)

	_, _, err = parsePersonalData("тяжёлый")
	assert.Error(t, err)

	_, _, err = parsePersonalData("-5 м")
	assert.Error(t, err)
}

func TestParseScheduleTime(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	parsed, err := parseScheduleTime("25.12 19:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.December, parsed.Month())
	assert.Equal(t, 25, parsed.Day())
	assert.Equal(t, 19, parsed.Hour())
	assert.Equal(t, 2025, parsed.Year())

	// Bare time means today when still ahead.
	parsed, err = parseScheduleTime("19:00", now)
	require.NoError(t, err)
	assert.Equal(t, now.Day(), parsed.Day())
	assert.Equal(t, 19, parsed.Hour())

	// A time already past rolls to tomorrow.
	parsed, err = parseScheduleTime("08:00", now)
	require.NoError(t, err)
	assert.Equal(t, now.Day()+1, parsed.Day())

	_, err = parseScheduleTime("в следующий вторник", now)
	assert.Error(t, err)
}
