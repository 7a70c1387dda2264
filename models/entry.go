package models

import "time"

// Entry — заявленная соревновательная единица: одиночка, пара или команда.
type Entry struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Player struct {
	ID         int       `json:"id"`
	EntryID    int       `json:"entry_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	CurrentElo int       `json:"current_elo"`
	CreatedAt  time.Time `json:"created_at"`
}
