package notify

import (
	"context"

	"placemats-be/internal/logger"
	"placemats-be/internal/order"

	"go.uber.org/zap"
)

// LogNotifier announces confirmed orders on the structured log. A mail or
// messaging integration replaces this by implementing the same interface.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) OrderConfirmed(ctx context.Context, o *order.Order) error {
	logger.FromCtx(ctx).Info("order confirmed",
		zap.String("order_id", o.ID.String()),
		zap.String("reference", o.Reference),
		zap.String("customer_email", o.CustomerEmail),
		zap.Int64("total", o.Total),
	)
	return nil
}
