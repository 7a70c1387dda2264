package lifecycle

import (
	"testing"

	"github.com/Dosada05/adjudication-engine/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    models.MatchStatus
		to      models.MatchStatus
		allowed bool
	}{
		{models.MatchStatusScheduled, models.MatchStatusInProgress, true},
		{models.MatchStatusInProgress, models.MatchStatusCompleted, true},
		{models.MatchStatusCompleted, models.MatchStatusApproved, true},
		{models.MatchStatusCompleted, models.MatchStatusRejected, true},
		{models.MatchStatusRejected, models.MatchStatusInProgress, true},

		{models.MatchStatusScheduled, models.MatchStatusCompleted, false},
		{models.MatchStatusInProgress, models.MatchStatusApproved, false},
		{models.MatchStatusInProgress, models.MatchStatusScheduled, false},
		{models.MatchStatusApproved, models.MatchStatusInProgress, false},
		{models.MatchStatusApproved, models.MatchStatusRejected, false},
		{models.MatchStatusRejected, models.MatchStatusApproved, false},
		{models.MatchStatusCompleted, models.MatchStatusInProgress, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionMutatesOnlyWhenLegal(t *testing.T) {
	match := &models.Match{ID: 1, Status: models.MatchStatusScheduled}

	require.NoError(t, Transition(match, models.MatchStatusInProgress))
	assert.Equal(t, models.MatchStatusInProgress, match.Status)

	err := Transition(match, models.MatchStatusApproved)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, models.MatchStatusInProgress, match.Status, "failed transition leaves status untouched")
}

func TestValidMaxSets(t *testing.T) {
	for _, n := range []int{1, 3, 5, 7} {
		assert.True(t, ValidMaxSets(n), "maxSets=%d", n)
	}
	for _, n := range []int{-1, 0, 2, 4, 6} {
		assert.False(t, ValidMaxSets(n), "maxSets=%d", n)
	}
}

func TestSetsWon(t *testing.T) {
	sets := []models.Set{
		{SetNumber: 1, EntryAScore: 21, EntryBScore: 15},
		{SetNumber: 2, EntryAScore: 19, EntryBScore: 21},
		{SetNumber: 3, EntryAScore: 21, EntryBScore: 18},
	}
	wonByA, wonByB := SetsWon(sets)
	assert.Equal(t, 2, wonByA)
	assert.Equal(t, 1, wonByB)
}

func TestValidateAppend(t *testing.T) {
	match := &models.Match{ID: 1, MaxSets: 3, Status: models.MatchStatusInProgress}

	t.Run("legal append", func(t *testing.T) {
		assert.NoError(t, ValidateAppend(match, nil, 21, 15))
	})

	t.Run("match not in progress", func(t *testing.T) {
		scheduled := &models.Match{ID: 2, MaxSets: 3, Status: models.MatchStatusScheduled}
		assert.ErrorIs(t, ValidateAppend(scheduled, nil, 21, 15), ErrInvalidState)

		completed := &models.Match{ID: 3, MaxSets: 3, Status: models.MatchStatusCompleted}
		assert.ErrorIs(t, ValidateAppend(completed, nil, 21, 15), ErrInvalidState)
	})

	t.Run("tied score", func(t *testing.T) {
		assert.ErrorIs(t, ValidateAppend(match, nil, 21, 21), ErrInvalidScore)
	})

	t.Run("negative score", func(t *testing.T) {
		assert.ErrorIs(t, ValidateAppend(match, nil, -1, 15), ErrInvalidScore)
	})

	t.Run("threshold already reached", func(t *testing.T) {
		decided := []models.Set{
			{SetNumber: 1, EntryAScore: 21, EntryBScore: 15},
			{SetNumber: 2, EntryAScore: 21, EntryBScore: 12},
		}
		assert.ErrorIs(t, ValidateAppend(match, decided, 21, 15), ErrMatchAlreadyDecided)
	})
}

func TestNextSetNumber(t *testing.T) {
	assert.Equal(t, 1, NextSetNumber(nil))
	assert.Equal(t, 3, NextSetNumber([]models.Set{{SetNumber: 1}, {SetNumber: 2}}))
}

func TestWinner(t *testing.T) {
	match := &models.Match{ID: 1, EntryAID: 10, EntryBID: 20, MaxSets: 3, Status: models.MatchStatusInProgress}

	t.Run("incomplete match", func(t *testing.T) {
		sets := []models.Set{{SetNumber: 1, EntryAScore: 21, EntryBScore: 15}}
		_, err := Winner(match, sets)
		assert.ErrorIs(t, err, ErrIncompleteMatch)
	})

	t.Run("entry A reaches threshold", func(t *testing.T) {
		sets := []models.Set{
			{SetNumber: 1, EntryAScore: 21, EntryBScore: 15},
			{SetNumber: 2, EntryAScore: 19, EntryBScore: 21},
			{SetNumber: 3, EntryAScore: 21, EntryBScore: 18},
		}
		winnerEntryID, err := Winner(match, sets)
		require.NoError(t, err)
		assert.Equal(t, 10, winnerEntryID)
	})

	t.Run("entry B sweep", func(t *testing.T) {
		sets := []models.Set{
			{SetNumber: 1, EntryAScore: 10, EntryBScore: 21},
			{SetNumber: 2, EntryAScore: 12, EntryBScore: 21},
		}
		winnerEntryID, err := Winner(match, sets)
		require.NoError(t, err)
		assert.Equal(t, 20, winnerEntryID)
	})
}

func TestDecidedBoundary(t *testing.T) {
	match := &models.Match{ID: 1, MaxSets: 5, Status: models.MatchStatusInProgress}
	require.Equal(t, 3, match.WinThreshold())

	sets := []models.Set{
		{SetNumber: 1, EntryAScore: 21, EntryBScore: 15},
		{SetNumber: 2, EntryAScore: 21, EntryBScore: 15},
	}
	assert.False(t, Decided(match, sets))

	sets = append(sets, models.Set{SetNumber: 3, EntryAScore: 21, EntryBScore: 19})
	assert.True(t, Decided(match, sets))
}
