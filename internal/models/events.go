package models

import "time"

// Event types
const (
	EventTypeCartItemAdded   = "CART_ITEM_ADDED"
	EventTypeCartItemUpdated = "CART_ITEM_UPDATED"
	EventTypeCartItemRemoved = "CART_ITEM_REMOVED"
	EventTypeCartCleared     = "CART_CLEARED"
	EventTypeProductSaved    = "PRODUCT_SAVED"
	EventTypeOrderUpdated    = "ORDER_UPDATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CartEvent published after a cart mutation commits
type CartEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	CartID    string `json:"cart_id,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
	Size      string `json:"size,omitempty"`
}

// ProductSavedEvent published when the privileged endpoint stores a product
type ProductSavedEvent struct {
	BaseEvent
	ProductID      string `json:"product_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Created        bool   `json:"created"`
}

// OrderUpdatedEvent is produced by the order subsystem when an order changes status
type OrderUpdatedEvent struct {
	BaseEvent
	OrderID        string     `json:"order_id"`
	Email          string     `json:"email"`
	Status         string     `json:"status"`
	TrackingNumber string     `json:"tracking_number,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
}
