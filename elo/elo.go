// Package elo реализует расчёт рейтинга: ожидаемый счёт, множитель
// убедительности победы и дельты для участников. Пакет чистый — никакого
// доступа к БД или состоянию, чтобы предпросмотр можно было вызывать
// многократно без побочных эффектов.
package elo

import (
	"math"

	"github.com/Dosada05/adjudication-engine/models"
)

const (
	DefaultKFactor = 32

	// Границы множителя убедительности: разгром 3:0 весит больше,
	// чем тяжёлые 2:1, но не более чем в полтора раза от базового K.
	minMarginMultiplier = 1.0
	maxMarginMultiplier = 1.5
)

// ExpectedScore — логистическая функция от разницы рейтингов.
// ExpectedScore(r, r) == 0.5; растёт в пользу более высокого рейтинга.
func ExpectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

// MarginMultiplier монотонно растёт от разницы суммарных очков по всем
// сетам и ограничен диапазоном [1.0, 1.5].
func MarginMultiplier(sets []models.Set) float64 {
	var pointsA, pointsB int
	for _, set := range sets {
		pointsA += set.EntryAScore
		pointsB += set.EntryBScore
	}
	diff := math.Abs(float64(pointsA - pointsB))
	total := float64(pointsA + pointsB)
	if total == 0 {
		return minMarginMultiplier
	}
	multiplier := minMarginMultiplier + (maxMarginMultiplier-minMarginMultiplier)*(diff/total)*2
	return clamp(multiplier, minMarginMultiplier, maxMarginMultiplier)
}

// Delta — изменение рейтинга одного участника:
// round(K * margin * (actual - expected)).
func Delta(kFactor int, margin, actual, expected float64) int {
	return int(math.Round(float64(kFactor) * margin * (actual - expected)))
}

type EntryRating struct {
	EntryID    int
	AverageElo float64
	Players    []models.Player
}

// Preview рассчитывает влияние результата матча на рейтинги обеих заявок.
// Дельта считается на уровне заявки по её среднему рейтингу и применяется
// каждому игроку заявки одинаково.
func Preview(match *models.Match, sets []models.Set, ratingA, ratingB EntryRating, kFactor int) *models.EloPreview {
	expectedA := ExpectedScore(ratingA.AverageElo, ratingB.AverageElo)
	expectedB := 1.0 - expectedA

	actualA, actualB := 0.0, 1.0
	if match.WinnerEntryID != nil && *match.WinnerEntryID == match.EntryAID {
		actualA, actualB = 1.0, 0.0
	}

	margin := MarginMultiplier(sets)

	return &models.EloPreview{
		MatchID: match.ID,
		EntryA:  entryPreview(ratingA, expectedA, actualA, margin, kFactor),
		EntryB:  entryPreview(ratingB, expectedB, actualB, margin, kFactor),
	}
}

func entryPreview(rating EntryRating, expected, actual, margin float64, kFactor int) models.EntryEloPreview {
	delta := Delta(kFactor, margin, actual, expected)
	players := make([]models.PlayerEloPreview, 0, len(rating.Players))
	for _, player := range rating.Players {
		players = append(players, models.PlayerEloPreview{
			PlayerID:   player.ID,
			CurrentElo: player.CurrentElo,
			Delta:      delta,
			NewElo:     player.CurrentElo + delta,
		})
	}
	return models.EntryEloPreview{
		EntryID:          rating.EntryID,
		AverageElo:       rating.AverageElo,
		ExpectedScore:    expected,
		ActualScore:      actual,
		MarginMultiplier: margin,
		Players:          players,
	}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
