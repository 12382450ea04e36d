package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/asquebay/storefront-service/internal/model"

	"github.com/segmentio/kafka-go"
)

// типы событий об изменении заказов
const (
	EventStatusChanged = "order.status_changed"
	EventDeleted       = "order.deleted"
)

// Event — сообщение в топике событий; ключ сообщения — id заказа
type Event struct {
	Type        string            `json:"type"`
	OrderID     int64             `json:"order_id"`
	OrderNumber string            `json:"order_number,omitempty"`
	Status      model.OrderStatus `json:"status,omitempty"`
	At          time.Time         `json:"at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher сообщает внешним системам о сменах статуса и удалениях заказов
type Publisher struct {
	writer messageWriter
	now    func() time.Time
}

// NewPublisher пишет события в topic; события одного заказа попадают в одну партицию
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		now: time.Now,
	}
}

func (p *Publisher) OrderStatusChanged(ctx context.Context, order model.Order) error {
	return p.publish(ctx, Event{
		Type:        EventStatusChanged,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
	})
}

func (p *Publisher) OrderDeleted(ctx context.Context, id int64) error {
	return p.publish(ctx, Event{Type: EventDeleted, OrderID: id})
}

func (p *Publisher) publish(ctx context.Context, ev Event) error {
	const op = "kafka.Publisher.publish"

	ev.At = p.now().UTC()
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.OrderID, 10)),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%s: %s: %w", op, ev.Type, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
