package models

import "time"

// Product represents a catalog product
type Product struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Description    string    `db:"description" json:"description,omitempty"`
	Category       string    `db:"category" json:"category,omitempty"`
	PriceCents     int64     `db:"price_cents" json:"price_cents"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	IdempotencyKey *string   `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Inventory represents stock for one size of a product
type Inventory struct {
	ProductID string `db:"product_id" json:"-"`
	Size      string `db:"size" json:"size"`
	Stock     int    `db:"stock" json:"stock"`
}

// ProductImage represents a stored product image
type ProductImage struct {
	ProductID   string `db:"product_id" json:"product_id"`
	StoragePath string `db:"storage_path" json:"storage_path"`
	Alt         string `db:"alt" json:"alt,omitempty"`
	Position    int    `db:"position" json:"position"`
}

// ShoppingCart is bound to an anonymous session or to a user
type ShoppingCart struct {
	ID        string    `db:"id" json:"id"`
	SessionID *string   `db:"session_id" json:"session_id,omitempty"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CartItem is a line in a shopping cart
type CartItem struct {
	ID        string    `db:"id" json:"id"`
	CartID    string    `db:"cart_id" json:"cart_id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	Size      string    `db:"size" json:"size,omitempty"`
	AddedAt   time.Time `db:"added_at" json:"added_at"`
}

// CartProduct is the live product data joined onto a cart line
type CartProduct struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	PriceCents int64       `json:"price_cents"`
	ImageURL   string      `json:"image_url,omitempty"`
	Inventory  []Inventory `json:"inventory"`
}

// CartLine is a cart item annotated with live catalog data.
// Product is nil when the referenced product no longer exists.
type CartLine struct {
	ID        string       `json:"id"`
	ProductID string       `json:"product_id"`
	Quantity  int          `json:"quantity"`
	Size      string       `json:"size,omitempty"`
	AddedAt   time.Time    `json:"added_at"`
	Product   *CartProduct `json:"products"`
}

// ProductPayload is an admin write intent: create when ID is empty, update otherwise
type ProductPayload struct {
	ID             string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name           string         `json:"name" yaml:"name" validate:"notblank"`
	Description    string         `json:"description,omitempty" yaml:"description,omitempty"`
	Category       string         `json:"category,omitempty" yaml:"category,omitempty"`
	PriceCents     int64          `json:"price_cents" yaml:"price_cents" validate:"gte=0"`
	IsActive       *bool          `json:"is_active,omitempty" yaml:"is_active,omitempty"`
	Inventory      []InventoryRow `json:"inventory,omitempty" yaml:"inventory,omitempty" validate:"unique=Size,dive"`
	ImageURL       string         `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty" yaml:"idempotency_key,omitempty" validate:"max=255"`
}

// InventoryRow is one size/stock pair inside a ProductPayload
type InventoryRow struct {
	Size  string `json:"size" yaml:"size" validate:"notblank"`
	Stock int    `json:"stock" yaml:"stock" validate:"gte=0"`
}

// Active resolves the optional IsActive flag (new products default to active)
func (p *ProductPayload) Active() bool {
	return p.IsActive == nil || *p.IsActive
}

// TwoFactorCode is an issued one-time verification code
type TwoFactorCode struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Code      string    `db:"code" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Verified  bool      `db:"verified" json:"verified"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Save paths reported by the admin write protocol
const (
	SaveViaDirect   = "direct"
	SaveViaFallback = "fallback"
)
