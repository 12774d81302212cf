package service

import (
	"context"
	"time"

	"storefront/internal/models"
)

// CartReader is the read side of the cart tables. The aggregation service is
// given the privileged store, so implementations must filter by the ids passed.
type CartReader interface {
	GetCartBySession(ctx context.Context, sessionID string) (*models.ShoppingCart, error)
	GetCartItems(ctx context.Context, cartID string) ([]models.CartItem, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	GetInventoryByProductIDs(ctx context.Context, ids []string) ([]models.Inventory, error)
	GetPrimaryImages(ctx context.Context, ids []string) ([]models.ProductImage, error)
}

// CartWriter mutates carts under the restricted credential
type CartWriter interface {
	UpsertCart(ctx context.Context, sessionID string) (string, error)
	AddCartItem(ctx context.Context, sessionID string, item *models.CartItem) error
	UpdateCartItemQuantity(ctx context.Context, sessionID, itemID string, quantity int) error
	DeleteCartItem(ctx context.Context, sessionID, itemID string) error
	ClearCart(ctx context.Context, sessionID string) (int64, error)
}

// ProductWriter persists a product write intent
type ProductWriter interface {
	SaveProduct(ctx context.Context, p *models.ProductPayload) (id string, created bool, err error)
}

// CodeStore persists 2FA codes
type CodeStore interface {
	CreateTwoFactorCode(ctx context.Context, code *models.TwoFactorCode) error
	LatestTwoFactorCode(ctx context.Context, userID string) (*models.TwoFactorCode, error)
	MarkTwoFactorVerified(ctx context.Context, id string) (bool, error)
}

// ResultCache remembers outcomes of idempotent writes
type ResultCache interface {
	RememberResult(ctx context.Context, key, value string, ttl time.Duration) error
	LookupResult(ctx context.Context, key string) (string, bool, error)
}

// Locker hands out expiring locks
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// CartEventPublisher publishes cart mutation events
type CartEventPublisher interface {
	PublishCartEvent(ctx context.Context, event *models.CartEvent) error
}

// ProductEventPublisher publishes product events
type ProductEventPublisher interface {
	PublishProductSaved(ctx context.Context, event *models.ProductSavedEvent) error
}
