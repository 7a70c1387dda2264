package models

import "time"

type MatchStatus string

const (
	MatchStatusScheduled  MatchStatus = "scheduled"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusCompleted  MatchStatus = "completed" // ожидает решения главного судьи
	MatchStatusApproved   MatchStatus = "approved"
	MatchStatusRejected   MatchStatus = "rejected"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchStatusScheduled, MatchStatusInProgress, MatchStatusCompleted,
		MatchStatusApproved, MatchStatusRejected:
		return true
	}
	return false
}

type Match struct {
	ID            int         `json:"id"`
	EntryAID      int         `json:"entry_a_id"`
	EntryBID      int         `json:"entry_b_id"`
	RefereeID     int         `json:"referee_id"`
	MaxSets       int         `json:"max_sets"`
	Status        MatchStatus `json:"status"`
	WinnerEntryID *int        `json:"winner_entry_id,omitempty"`
	ReviewNotes   *string     `json:"review_notes,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// WinThreshold возвращает количество побед в сетах, решающее матч (best-of-N).
func (m *Match) WinThreshold() int {
	return m.MaxSets/2 + 1
}

type Set struct {
	ID          int       `json:"id"`
	MatchID     int       `json:"match_id"`
	SetNumber   int       `json:"set_number"`
	EntryAScore int       `json:"entry_a_score"`
	EntryBScore int       `json:"entry_b_score"`
	CreatedAt   time.Time `json:"created_at"`
}
