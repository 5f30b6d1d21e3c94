package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/safar/go-bookstore/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	calls  []string
	html   string
	err    error
	panics bool
}

func (r *recordingNotifier) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if r.panics {
		panic("mailer exploded")
	}
	return r.err
}

func (r *recordingNotifier) SendOrderConfirmation(ctx context.Context, user *models.User, claimCode, itemizedHTML string) error {
	r.mu.Lock()
	r.html = itemizedHTML
	r.mu.Unlock()
	return r.record(TypeOrderConfirmation + ":" + claimCode)
}

func (r *recordingNotifier) SendOrderProcessed(ctx context.Context, user *models.User, order *models.Order) error {
	return r.record(TypeOrderProcessed)
}

func (r *recordingNotifier) SendOrderCancelled(ctx context.Context, user *models.User, order *models.Order) error {
	return r.record(TypeOrderCancelled)
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:                  12,
		ClaimCode:           "7XQ2M9KA0Z",
		Subtotal:            decimal.RequireFromString("50.00"),
		DiscountPercentage:  decimal.RequireFromString("0.15"),
		DiscountDescription: "5% volume discount, 10% loyalty discount",
		TotalAmount:         decimal.RequireFromString("42.50"),
		Items: []models.OrderItem{{
			BookID:    3,
			Title:     "Dune <Deluxe>",
			Quantity:  5,
			UnitPrice: decimal.RequireFromString("10.00"),
			LineTotal: decimal.RequireFromString("50.00"),
		}},
	}
}

func TestRenderItemized(t *testing.T) {
	html, err := RenderItemized(sampleOrder())
	require.NoError(t, err)

	assert.Contains(t, html, "Dune &lt;Deluxe&gt;")
	assert.Contains(t, html, "$50.00")
	assert.Contains(t, html, "Total: $42.50")
	assert.Contains(t, html, "7XQ2M9KA0Z")
	assert.Contains(t, html, "10% loyalty discount")
}

func TestDispatcherSends(t *testing.T) {
	n := &recordingNotifier{}
	d := NewDispatcher(n, time.Second)
	user := &models.User{ID: 1, Email: "reader@example.com"}

	d.OrderConfirmed(context.Background(), user, sampleOrder())
	d.OrderProcessed(context.Background(), user, sampleOrder())
	d.OrderCancelled(context.Background(), user, sampleOrder())
	d.Wait()

	assert.ElementsMatch(t, []string{
		TypeOrderConfirmation + ":7XQ2M9KA0Z",
		TypeOrderProcessed,
		TypeOrderCancelled,
	}, n.calls)
	assert.Contains(t, n.html, "Claim code")
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	for name, n := range map[string]*recordingNotifier{
		"error": {err: errors.New("smtp down")},
		"panic": {panics: true},
	} {
		t.Run(name, func(t *testing.T) {
			d := NewDispatcher(n, time.Second)

			assert.NotPanics(t, func() {
				d.OrderProcessed(context.Background(), &models.User{ID: 1}, sampleOrder())
				d.Wait()
			})
			assert.Len(t, n.calls, 1)
		})
	}
}

func TestDispatcherOutlivesRequestContext(t *testing.T) {
	n := &recordingNotifier{}
	d := NewDispatcher(n, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.OrderCancelled(ctx, &models.User{ID: 1}, sampleOrder())
	d.Wait()

	assert.Equal(t, []string{TypeOrderCancelled}, n.calls)
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaNotifierPublishesEvents(t *testing.T) {
	w := &fakeWriter{}
	n := NewKafkaNotifier(w)
	n.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	user := &models.User{ID: 42, Email: "reader@example.com", Name: "Reader"}

	require.NoError(t, n.SendOrderConfirmation(context.Background(), user, "7XQ2M9KA0Z", "<p>hi</p>"))
	require.NoError(t, n.SendOrderProcessed(context.Background(), user, sampleOrder()))
	require.Len(t, w.messages, 2)

	assert.Equal(t, "42", string(w.messages[0].Key))
	assert.Equal(t, TypeOrderConfirmation, string(w.messages[0].Headers[0].Value))

	var event Event
	require.NoError(t, json.Unmarshal(w.messages[1].Value, &event))
	assert.Equal(t, TypeOrderProcessed, event.Type)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), event.OccurredAt)
	assert.Equal(t, int64(12), event.OrderID)
	assert.Equal(t, "reader@example.com", event.Email)
	require.NotNil(t, event.TotalAmount)
	assert.Equal(t, "42.5", event.TotalAmount.String())
}

func TestKafkaNotifierWrapsWriteErrors(t *testing.T) {
	n := NewKafkaNotifier(&fakeWriter{err: errors.New("broker unavailable")})

	err := n.SendOrderCancelled(context.Background(), &models.User{ID: 1}, sampleOrder())
	assert.ErrorContains(t, err, "broker unavailable")
}
