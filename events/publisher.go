// Package events — доставка уведомлений о переходах матча внешним
// подписчикам. Доставка fire-and-forget: ошибка публикации логируется и
// никогда не ломает сам переход состояния.
package events

import (
	"log"
	"time"

	"github.com/google/uuid"
)

const (
	MatchStarted     = "match.started"
	MatchSetRecorded = "match.setRecorded"
	MatchFinalized   = "match.finalized"
	MatchApproved    = "match.approved"
	MatchRejected    = "match.rejected"
)

type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	MatchID    int         `json:"match_id"`
	Payload    interface{} `json:"payload"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func NewEvent(eventType string, matchID int, payload interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		MatchID:    matchID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(event Event)
}

// MultiPublisher рассылает событие во все подключённые стоки.
type MultiPublisher struct {
	sinks []Publisher
}

func NewMultiPublisher(sinks ...Publisher) *MultiPublisher {
	return &MultiPublisher{sinks: sinks}
}

func (p *MultiPublisher) Publish(event Event) {
	for _, sink := range p.sinks {
		sink.Publish(event)
	}
}

// LogPublisher — сток по умолчанию, когда внешние стоки не сконфигурированы.
type LogPublisher struct{}

func (LogPublisher) Publish(event Event) {
	log.Printf("event %s (%s) for match %d", event.Type, event.ID, event.MatchID)
}
