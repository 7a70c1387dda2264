package events

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/streadway/amqp"
)

const matchEventsExchange = "match.events"

// AMQPPublisher публикует события матчей в fanout-обменник RabbitMQ для
// внешних потребителей (уведомления, аналитика). При обрыве соединения
// пытается переподключиться при следующей публикации.
type AMQPPublisher struct {
	url     string
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	if err := channel.ExchangeDeclare(matchEventsExchange, "fanout", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return err
	}

	p.conn = conn
	p.channel = channel
	return nil
}

func (p *AMQPPublisher) Publish(event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("amqp: error marshalling event %s: %v", event.Type, err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	publish := func() error {
		return p.channel.Publish(matchEventsExchange, event.Type, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.OccurredAt,
			Body:         body,
		})
	}

	if err := publish(); err != nil {
		log.Printf("amqp: publish failed, reconnecting: %v", err)
		if reconnectErr := p.connect(); reconnectErr != nil {
			log.Printf("amqp: reconnect failed, event %s dropped: %v", event.ID, reconnectErr)
			return
		}
		if retryErr := publish(); retryErr != nil {
			log.Printf("amqp: publish retry failed, event %s dropped: %v", event.ID, retryErr)
		}
	}
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
