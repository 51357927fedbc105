// Package notify publishes order lifecycle events. Publishing is
// fire-and-forget: an order that exists but whose event was lost is a
// support inconvenience, an order blocked on a broker is an outage.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bazarhq/fulfillment/internal/domain/order"
)

var _ order.Notifier = (*Kafka)(nil)

// Kafka publishes order-created events to a Kafka topic, keyed by user id so
// a consumer sees one user's orders in sequence.
type Kafka struct {
	writer *kafka.Writer
	lg     *zap.Logger
}

// NewKafka creates a Kafka notifier writing to the given brokers and topic.
func NewKafka(brokers []string, topic string, lg *zap.Logger) *Kafka {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            3,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			lg.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			lg.Error(fmt.Sprintf(msg, args...))
		}),
	}
	return &Kafka{writer: writer, lg: lg}
}

// orderCreatedEvent is the wire shape of the order-created notification.
type orderCreatedEvent struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	PaymentID   string    `json:"payment_id"`
	Total       string    `json:"total"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

// NotifyOrderCreated publishes the order-created event. Failures are logged
// and swallowed.
func (k *Kafka) NotifyOrderCreated(ctx context.Context, o *order.Order) {
	event := orderCreatedEvent{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		UserID:      o.UserID,
		PaymentID:   o.PaymentID,
		Total:       o.Total.Decimal().StringFixed(2),
		Currency:    o.Total.Currency,
		CreatedAt:   o.CreatedAt,
	}
	value, err := json.Marshal(event)
	if err != nil {
		k.lg.Error("marshal order-created event", zap.Error(err))
		return
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(o.UserID),
		Value: value,
	})
	if err != nil {
		k.lg.Error("publish order-created event",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

var _ order.Notifier = Nop{}

// Nop is a no-op notifier for tests and broker-less deployments.
type Nop struct{}

// NotifyOrderCreated does nothing.
func (Nop) NotifyOrderCreated(context.Context, *order.Order) {}
