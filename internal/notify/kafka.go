package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// Event is the message published for the mailer. It carries everything the
// mailer needs so it never calls back into this service.
type Event struct {
	// ID lets the consumer drop redelivered messages.
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	UserID       int64            `json:"userId"`
	Email        string           `json:"email"`
	Name         string           `json:"name"`
	OrderID      int64            `json:"orderId,omitempty"`
	ClaimCode    string           `json:"claimCode"`
	TotalAmount  *decimal.Decimal `json:"totalAmount,omitempty"`
	ItemizedHTML string           `json:"itemizedHtml,omitempty"`
	OccurredAt   time.Time        `json:"occurredAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notification events keyed by user id, so all
// messages for one customer stay ordered within a partition.
type KafkaNotifier struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewKafkaNotifier(writer messageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, now: time.Now}
}

func (n *KafkaNotifier) SendOrderConfirmation(ctx context.Context, user *models.User, claimCode, itemizedHTML string) error {
	return n.publish(ctx, Event{
		Type:         TypeOrderConfirmation,
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.Name,
		ClaimCode:    claimCode,
		ItemizedHTML: itemizedHTML,
	})
}

func (n *KafkaNotifier) SendOrderProcessed(ctx context.Context, user *models.User, order *models.Order) error {
	return n.publish(ctx, orderEvent(TypeOrderProcessed, user, order))
}

func (n *KafkaNotifier) SendOrderCancelled(ctx context.Context, user *models.User, order *models.Order) error {
	return n.publish(ctx, orderEvent(TypeOrderCancelled, user, order))
}

func orderEvent(eventType string, user *models.User, order *models.Order) Event {
	total := order.TotalAmount
	return Event{
		Type:        eventType,
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		OrderID:     order.ID,
		ClaimCode:   order.ClaimCode,
		TotalAmount: &total,
	}
}

func (n *KafkaNotifier) publish(ctx context.Context, event Event) error {
	event.ID = uuid.NewString()
	event.OccurredAt = n.now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(event.UserID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
