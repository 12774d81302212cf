package service

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CartMutator changes cart contents with the restricted credential. Row-level
// security confines every statement to the caller's session; nothing here
// locks or checks stock.
type CartMutator struct {
	writer CartWriter
	events CartEventPublisher
	logger *zap.Logger
}

// NewCartMutator creates a cart mutator. events may be nil.
func NewCartMutator(writer CartWriter, events CartEventPublisher) *CartMutator {
	return &CartMutator{
		writer: writer,
		events: events,
		logger: util.GetLogger(),
	}
}

// EnsureCart returns the session's cart id, creating the cart if needed
func (m *CartMutator) EnsureCart(ctx context.Context, sessionID string) (string, error) {
	ctx, span := util.StartSpan(ctx, "CartMutator.EnsureCart")
	defer span.End()

	if strings.TrimSpace(sessionID) == "" {
		return "", ErrSessionRequired
	}

	cartID, err := m.writer.UpsertCart(ctx, sessionID)
	if err != nil {
		m.record("ensure", err)
		return "", util.RecordError(span, fmt.Errorf("failed to ensure cart: %w", err))
	}
	m.record("ensure", nil)
	return cartID, nil
}

// AddItem adds quantity units of a product/size to the cart, merging with an
// existing line. An empty cartID creates or reuses the session's cart.
func (m *CartMutator) AddItem(ctx context.Context, sessionID, cartID, productID string, quantity int, size string) (*models.CartItem, error) {
	ctx, span := util.StartSpan(ctx, "CartMutator.AddItem")
	defer span.End()

	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	if productID == "" {
		return nil, apperr.New(apperr.ClientInput, "CartMutator.AddItem", "product_id is required")
	}
	if quantity < 1 {
		return nil, apperr.New(apperr.ClientInput, "CartMutator.AddItem", "quantity must be at least 1")
	}

	if cartID == "" {
		var err error
		if cartID, err = m.EnsureCart(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	item := &models.CartItem{
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		Size:      size,
	}
	if err := m.writer.AddCartItem(ctx, sessionID, item); err != nil {
		m.record("add", err)
		return nil, util.RecordError(span, fmt.Errorf("failed to add cart item: %w", err))
	}
	m.record("add", nil)

	m.publish(ctx, &models.CartEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeCartItemAdded),
		SessionID: sessionID,
		CartID:    cartID,
		ItemID:    item.ID,
		ProductID: productID,
		Quantity:  item.Quantity,
		Size:      size,
	})

	return item, nil
}

// UpdateQuantity sets a line's quantity. A quantity of zero or less removes
// the line instead.
func (m *CartMutator) UpdateQuantity(ctx context.Context, sessionID, itemID string, quantity int) error {
	if quantity <= 0 {
		return m.RemoveItem(ctx, sessionID, itemID)
	}

	ctx, span := util.StartSpan(ctx, "CartMutator.UpdateQuantity")
	defer span.End()

	if err := validateItemRef(sessionID, itemID); err != nil {
		return err
	}

	if err := m.writer.UpdateCartItemQuantity(ctx, sessionID, itemID, quantity); err != nil {
		m.record("update", err)
		return util.RecordError(span, fmt.Errorf("failed to update cart item: %w", err))
	}
	m.record("update", nil)

	m.publish(ctx, &models.CartEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeCartItemUpdated),
		SessionID: sessionID,
		ItemID:    itemID,
		Quantity:  quantity,
	})
	return nil
}

// RemoveItem deletes a line
func (m *CartMutator) RemoveItem(ctx context.Context, sessionID, itemID string) error {
	ctx, span := util.StartSpan(ctx, "CartMutator.RemoveItem")
	defer span.End()

	if err := validateItemRef(sessionID, itemID); err != nil {
		return err
	}

	if err := m.writer.DeleteCartItem(ctx, sessionID, itemID); err != nil {
		m.record("remove", err)
		return util.RecordError(span, fmt.Errorf("failed to remove cart item: %w", err))
	}
	m.record("remove", nil)

	m.publish(ctx, &models.CartEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeCartItemRemoved),
		SessionID: sessionID,
		ItemID:    itemID,
	})
	return nil
}

// ClearCart empties the session's cart and reports how many lines went
func (m *CartMutator) ClearCart(ctx context.Context, sessionID string) (int64, error) {
	ctx, span := util.StartSpan(ctx, "CartMutator.ClearCart")
	defer span.End()

	if strings.TrimSpace(sessionID) == "" {
		return 0, ErrSessionRequired
	}

	removed, err := m.writer.ClearCart(ctx, sessionID)
	if err != nil {
		m.record("clear", err)
		return 0, util.RecordError(span, fmt.Errorf("failed to clear cart: %w", err))
	}
	m.record("clear", nil)

	m.publish(ctx, &models.CartEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeCartCleared),
		SessionID: sessionID,
		Quantity:  int(removed),
	})
	return removed, nil
}

func validateItemRef(sessionID, itemID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionRequired
	}
	if itemID == "" {
		return apperr.New(apperr.ClientInput, "CartMutator", "item id is required")
	}
	return nil
}

func (m *CartMutator) record(operation string, err error) {
	result := "success"
	if err != nil {
		result = apperr.KindOf(err).String()
	}
	util.CartMutationsTotal.WithLabelValues(operation, result).Inc()
}

// publish is best effort; the mutation has already committed
func (m *CartMutator) publish(ctx context.Context, event *models.CartEvent) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishCartEvent(ctx, event); err != nil {
		m.logger.Error("Failed to publish cart event",
			zap.String("type", event.EventType),
			zap.String("session_id", event.SessionID),
			zap.Error(err))
	}
}
