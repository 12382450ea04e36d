package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/asquebay/storefront-service/internal/lib/apperr"
	"github.com/asquebay/storefront-service/internal/model"

	"github.com/segmentio/kafka-go"
)

// OrderIngester сохраняет заказ, пришедший из checkout
type OrderIngester interface {
	IngestOrder(ctx context.Context, order model.Order) (int64, error)
}

// OrdersInvalidator помечает устаревшими закэшированные заказы
type OrdersInvalidator interface {
	InvalidateOrders() int
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает новые заказы из Kafka
type Consumer struct {
	reader      messageReader
	service     OrderIngester
	invalidator OrdersInvalidator
	log         *slog.Logger
}

// NewConsumer создает новый экземпляр консьюмера
func NewConsumer(brokers []string, topic, groupID string, service OrderIngester, invalidator OrdersInvalidator, log *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: groupID,
		Topic:   topic,
	})
	return newConsumer(reader, service, invalidator, log)
}

func newConsumer(reader messageReader, service OrderIngester, invalidator OrdersInvalidator, log *slog.Logger) *Consumer {
	return &Consumer{
		reader:      reader,
		service:     service,
		invalidator: invalidator,
		log:         log.With(slog.String("component", "kafka_consumer")),
	}
}

// Run запускает цикл чтения сообщений
// функция блокирующая, поэтому запускается в отдельной горутине
func (c *Consumer) Run(ctx context.Context) {
	c.log.Info("Kafka consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				c.log.Info("context cancelled, stopping consumer")
				return
			}
			if errors.Is(err, io.EOF) {
				c.log.Info("Kafka reader closed")
				return
			}
			c.log.Error("failed to fetch message", slog.String("error", err.Error()))
			continue
		}

		c.log.Debug("received message",
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
		)

		if err := c.handleMessage(ctx, msg); err != nil {
			c.log.Error("failed to handle message", slog.String("error", err.Error()))
			// offset не фиксируем: Kafka отдаст сообщение снова
			continue
		}

		// фиксируем offset только после обработки
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("failed to commit message", slog.String("error", err.Error()))
		}
	}
}

// handleMessage сохраняет один заказ
// ошибка возвращается только тогда, когда повтор может помочь
func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	var order model.Order
	if err := json.Unmarshal(msg.Value, &order); err != nil {
		c.log.Warn("failed to unmarshal message, skipping", slog.String("error", err.Error()))
		return nil
	}

	id, err := c.service.IngestOrder(ctx, order)
	switch {
	case apperr.Is(err, apperr.Validation):
		c.log.Warn("order rejected, skipping",
			slog.String("order_number", order.OrderNumber),
			slog.String("error", err.Error()),
		)
		return nil
	case apperr.Is(err, apperr.Conflict):
		// повторная доставка уже сохранённого заказа
		c.log.Info("order already stored, skipping", slog.String("order_number", order.OrderNumber))
		return nil
	case err != nil:
		return err
	}

	n := c.invalidator.InvalidateOrders()
	c.log.Info("order ingested",
		slog.Int64("order_id", id),
		slog.String("order_number", order.OrderNumber),
		slog.Int("invalidated", n),
	)
	return nil
}

// Close останавливает чтение
func (c *Consumer) Close() error {
	c.log.Info("closing kafka consumer")
	return c.reader.Close()
}
