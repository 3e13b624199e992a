// README: Geofence event publishers: RabbitMQ fanout exchange and a no-op fallback.
package geofence

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"fleet/internal/modules/asset"
)

var (
	_ Publisher = (*RabbitPublisher)(nil)
	_ Publisher = NopPublisher{}
)

const (
	exchangeName = "fleet.events"
	queueName    = "geofence_alerts"
)

type RabbitPublisher struct {
	ch *amqp.Channel
}

// NewRabbitPublisher declares the fanout exchange and a durable alerts
// queue bound to it.
func NewRabbitPublisher(conn *amqp.Connection) (*RabbitPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queueName, "", exchangeName, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	return &RabbitPublisher{ch: ch}, nil
}

type eventMessage struct {
	AssetID    string          `json:"asset_id"`
	GeofenceID string          `json:"geofence_id"`
	Event      asset.EventType `json:"event"`
	Location   eventLocation   `json:"location"`
	Timestamp  int64           `json:"timestamp"`
}

type eventLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func encodeEvent(e asset.GeofenceEvent) ([]byte, error) {
	return json.Marshal(eventMessage{
		AssetID:    string(e.AssetID),
		GeofenceID: string(e.GeofenceID),
		Event:      e.EventType,
		Location:   eventLocation{Latitude: e.Lat, Longitude: e.Lng},
		Timestamp:  e.Timestamp.Unix(),
	})
}

func (p *RabbitPublisher) Publish(ctx context.Context, events []asset.GeofenceEvent) error {
	for _, e := range events {
		body, err := encodeEvent(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		err = p.ch.PublishWithContext(ctx, exchangeName, "", false, false, amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
		if err != nil {
			return fmt.Errorf("publish event: %w", err)
		}
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	return p.ch.Close()
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []asset.GeofenceEvent) error { return nil }
