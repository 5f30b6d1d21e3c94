package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/go-bookstore/internal/metrics"
	"github.com/safar/go-bookstore/internal/models"
)

// Dispatcher sends notifications in the background. Failures and panics are
// logged and counted, never returned.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, timeout time.Duration) *Dispatcher {
	return &Dispatcher{notifier: notifier, timeout: timeout}
}

// OrderConfirmed renders the itemized summary and sends the confirmation.
func (d *Dispatcher) OrderConfirmed(ctx context.Context, user *models.User, order *models.Order) {
	d.dispatch(ctx, TypeOrderConfirmation, order, func(ctx context.Context) error {
		html, err := RenderItemized(order)
		if err != nil {
			return err
		}
		return d.notifier.SendOrderConfirmation(ctx, user, order.ClaimCode, html)
	})
}

func (d *Dispatcher) OrderProcessed(ctx context.Context, user *models.User, order *models.Order) {
	d.dispatch(ctx, TypeOrderProcessed, order, func(ctx context.Context) error {
		return d.notifier.SendOrderProcessed(ctx, user, order)
	})
}

func (d *Dispatcher) OrderCancelled(ctx context.Context, user *models.User, order *models.Order) {
	d.dispatch(ctx, TypeOrderCancelled, order, func(ctx context.Context) error {
		return d.notifier.SendOrderCancelled(ctx, user, order)
	})
}

// Wait blocks until every in-flight send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(ctx context.Context, eventType string, order *models.Order, send func(context.Context) error) {
	logger := zerolog.Ctx(ctx).With().
		Str("notification", eventType).
		Int64("order_id", order.ID).
		Logger()

	// Detach from the request so the send outlives the response.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("notifier panic: %v", r)
				}
			}()
			return send(ctx)
		}()

		if err != nil {
			metrics.Notifications.WithLabelValues(eventType, "failed").Inc()
			logger.Warn().Err(err).Msg("notification failed")
			return
		}
		metrics.Notifications.WithLabelValues(eventType, "sent").Inc()
	}()
}
