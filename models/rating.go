package models

import "time"

// EloChange — зафиксированное изменение рейтинга игрока по итогам матча.
// Наличие строк по match_id служит маркером уже применённого коммита.
type EloChange struct {
	ID        int       `json:"id"`
	MatchID   int       `json:"match_id"`
	PlayerID  int       `json:"player_id"`
	OldElo    int       `json:"old_elo"`
	Delta     int       `json:"delta"`
	NewElo    int       `json:"new_elo"`
	CreatedAt time.Time `json:"created_at"`
}

type PlayerEloPreview struct {
	PlayerID   int `json:"player_id"`
	CurrentElo int `json:"current_elo"`
	Delta      int `json:"delta"`
	NewElo     int `json:"new_elo"`
}

type EntryEloPreview struct {
	EntryID          int                `json:"entry_id"`
	AverageElo       float64            `json:"average_elo"`
	ExpectedScore    float64            `json:"expected_score"`
	ActualScore      float64            `json:"actual_score"`
	MarginMultiplier float64            `json:"margin_multiplier"`
	Players          []PlayerEloPreview `json:"players"`
}

// EloPreview — предпросмотр влияния матча на рейтинги, без побочных эффектов.
type EloPreview struct {
	MatchID int             `json:"match_id"`
	EntryA  EntryEloPreview `json:"entry_a"`
	EntryB  EntryEloPreview `json:"entry_b"`
}
