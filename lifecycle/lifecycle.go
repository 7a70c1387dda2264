package lifecycle

import (
	"errors"
	"fmt"

	"github.com/Dosada05/adjudication-engine/models"
)

// Ошибки доменных правил жизненного цикла матча.
var (
	ErrInvalidState        = errors.New("operation is not legal for the current match status")
	ErrInvalidScore        = errors.New("set scores must be non-negative and not equal")
	ErrMatchAlreadyDecided = errors.New("match already has a decided outcome, no more sets can be recorded")
	ErrIncompleteMatch     = errors.New("win condition is not reached yet")
	ErrInvalidMaxSets      = errors.New("max sets must be an odd number greater than or equal to 1")
)

// transitions описывает допустимые рёбра статусов.
// Единственное обратное ребро — rejected -> in_progress (переоткрытие),
// approved — терминальный статус.
var transitions = map[models.MatchStatus][]models.MatchStatus{
	models.MatchStatusScheduled:  {models.MatchStatusInProgress},
	models.MatchStatusInProgress: {models.MatchStatusCompleted},
	models.MatchStatusCompleted:  {models.MatchStatusApproved, models.MatchStatusRejected},
	models.MatchStatusRejected:   {models.MatchStatusInProgress},
	models.MatchStatusApproved:   {},
}

func CanTransition(from, to models.MatchStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition переводит матч в новый статус или возвращает ErrInvalidState.
func Transition(match *models.Match, to models.MatchStatus) error {
	if !CanTransition(match.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, match.Status, to)
	}
	match.Status = to
	return nil
}

func ValidMaxSets(maxSets int) bool {
	return maxSets >= 1 && maxSets%2 == 1
}

// SetsWon — чистый подсчёт выигранных сетов по журналу.
func SetsWon(sets []models.Set) (wonByA, wonByB int) {
	for _, set := range sets {
		if set.EntryAScore > set.EntryBScore {
			wonByA++
		} else {
			wonByB++
		}
	}
	return wonByA, wonByB
}

// Decided сообщает, достигнут ли порог побед (⌈maxSets/2⌉) одной из сторон.
func Decided(match *models.Match, sets []models.Set) bool {
	wonByA, wonByB := SetsWon(sets)
	threshold := match.WinThreshold()
	return wonByA >= threshold || wonByB >= threshold
}

// ValidateAppend проверяет допустимость записи нового сета.
// Сам журнал append-only: сеты после вставки не редактируются.
func ValidateAppend(match *models.Match, sets []models.Set, scoreA, scoreB int) error {
	if match.Status != models.MatchStatusInProgress {
		return fmt.Errorf("%w: match %d has status %s", ErrInvalidState, match.ID, match.Status)
	}
	if scoreA < 0 || scoreB < 0 || scoreA == scoreB {
		return fmt.Errorf("%w: got %d:%d", ErrInvalidScore, scoreA, scoreB)
	}
	if Decided(match, sets) {
		return ErrMatchAlreadyDecided
	}
	return nil
}

func NextSetNumber(sets []models.Set) int {
	return len(sets) + 1
}

// Winner возвращает id заявки, выигравшей матч. Если порог побед ещё не
// достигнут, возвращает ErrIncompleteMatch.
func Winner(match *models.Match, sets []models.Set) (int, error) {
	wonByA, wonByB := SetsWon(sets)
	threshold := match.WinThreshold()
	switch {
	case wonByA >= threshold:
		return match.EntryAID, nil
	case wonByB >= threshold:
		return match.EntryBID, nil
	default:
		return 0, fmt.Errorf("%w: %d:%d of %d needed", ErrIncompleteMatch, wonByA, wonByB, threshold)
	}
}
