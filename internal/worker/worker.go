package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// OrderUpdateNotifier reacts to order status changes
type OrderUpdateNotifier interface {
	HandleOrderUpdated(ctx context.Context, event *models.OrderUpdatedEvent) error
}

// NotificationWorker emails customers when the order subsystem publishes an
// ORDER_UPDATED event.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifier OrderUpdateNotifier) *NotificationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderUpdated(notifier.HandleOrderUpdated)

	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks consuming events until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the consumer
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}
