package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/safar/go-bookstore/internal/models"
)

// LogNotifier records notifications in the log instead of sending them.
// It is used when no Kafka brokers are configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) SendOrderConfirmation(ctx context.Context, user *models.User, claimCode, itemizedHTML string) error {
	n.logger.Info().
		Str("type", TypeOrderConfirmation).
		Int64("user_id", user.ID).
		Str("claim_code", claimCode).
		Int("html_bytes", len(itemizedHTML)).
		Msg("notification")
	return nil
}

func (n *LogNotifier) SendOrderProcessed(ctx context.Context, user *models.User, order *models.Order) error {
	n.logOrder(TypeOrderProcessed, user, order)
	return nil
}

func (n *LogNotifier) SendOrderCancelled(ctx context.Context, user *models.User, order *models.Order) error {
	n.logOrder(TypeOrderCancelled, user, order)
	return nil
}

func (n *LogNotifier) logOrder(eventType string, user *models.User, order *models.Order) {
	n.logger.Info().
		Str("type", eventType).
		Int64("user_id", user.ID).
		Int64("order_id", order.ID).
		Str("claim_code", order.ClaimCode).
		Msg("notification")
}
