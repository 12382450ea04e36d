package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asquebay/storefront-service/internal/config"
	"github.com/asquebay/storefront-service/internal/lib/apperr"
	"github.com/asquebay/storefront-service/internal/lib/logger"
	"github.com/asquebay/storefront-service/internal/model"
	"github.com/asquebay/storefront-service/internal/ratelimit"
	"github.com/asquebay/storefront-service/internal/repository/memory"
	"github.com/asquebay/storefront-service/internal/service"
)

// fakeReader отдаёт сообщения по очереди, затем io.EOF
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) InvalidateOrders() int {
	c.calls++
	return 2
}

type failingIngester struct{}

func (failingIngester) IngestOrder(ctx context.Context, order model.Order) (int64, error) {
	return 0, apperr.Wrap(errors.New("connection refused"), "Failed to save order")
}

func orderMessage(t *testing.T, offset int64, number string) kafka.Message {
	t.Helper()
	value, err := json.Marshal(model.Order{
		OrderNumber:     number,
		CustomerName:    "Anna Petrova",
		CustomerPhone:   "+7 900 000-00-01",
		TotalPrice:      120,
		ShippingAddress: "Lenina 1",
		Items:           []model.OrderItem{{ProductName: "Shirt", Quantity: 2, UnitPrice: 60, Subtotal: 120}},
	})
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: value}
}

func newIngestService(store *memory.Store) *service.OrderService {
	return service.NewOrderService(store, nil, ratelimit.New(), config.RateLimit{}, config.Search{MaxResults: 1000}, logger.Discard())
}

func TestConsumer_CommitsHandledAndSkippedMessages(t *testing.T) {
	store := memory.New()
	inv := &countingInvalidator{}
	reader := &fakeReader{msgs: []kafka.Message{
		orderMessage(t, 1, "ord-100"),
		{Offset: 2, Value: []byte("{not json")},
		orderMessage(t, 3, "ORD-100"), // повтор
		orderMessage(t, 4, ""),        // без номера
		orderMessage(t, 5, "ORD-101"),
	}}

	c := newConsumer(reader, newIngestService(store), inv, logger.Discard())
	c.Run(context.Background())

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, reader.committed)
	assert.Equal(t, 2, inv.calls, "only stored orders invalidate the cache")

	o, err := store.GetByNumber(context.Background(), "ORD-100")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, o.Status)
	_, err = store.GetByNumber(context.Background(), "ORD-101")
	require.NoError(t, err)
}

func TestConsumer_TransientFailureNotCommitted(t *testing.T) {
	inv := &countingInvalidator{}
	reader := &fakeReader{msgs: []kafka.Message{orderMessage(t, 7, "ORD-7")}}

	c := newConsumer(reader, failingIngester{}, inv, logger.Discard())
	c.Run(context.Background())

	assert.Empty(t, reader.committed)
	assert.Zero(t, inv.calls)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublisher_Events(t *testing.T) {
	w := &fakeWriter{}
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &Publisher{writer: w, now: func() time.Time { return at }}
	ctx := context.Background()

	require.NoError(t, p.OrderStatusChanged(ctx, model.Order{ID: 42, OrderNumber: "ORD-042", Status: model.StatusConfirmed}))
	require.NoError(t, p.OrderDeleted(ctx, 43))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "42", string(w.msgs[0].Key))
	var ev Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, Event{Type: EventStatusChanged, OrderID: 42, OrderNumber: "ORD-042", Status: model.StatusConfirmed, At: at}, ev)

	ev = Event{}
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &ev))
	assert.Equal(t, EventDeleted, ev.Type)
	assert.Equal(t, int64(43), ev.OrderID)
	assert.Empty(t, ev.Status)
}

func TestPublisher_WriteError(t *testing.T) {
	p := &Publisher{writer: &fakeWriter{err: errors.New("leader not available")}, now: time.Now}

	err := p.OrderDeleted(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EventDeleted)
}
