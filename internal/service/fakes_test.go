package service

import (
	"context"
	"sync"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/mail"
	"storefront/internal/models"
)

type fakeCartStore struct {
	carts    map[string]*models.ShoppingCart
	items    map[string][]models.CartItem
	products []models.Product
	stock    []models.Inventory
	images   []models.ProductImage
	readErr  error
	writeErr error

	added   []models.CartItem
	updated map[string]int
	deleted []string
	cleared []string
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{
		carts:   map[string]*models.ShoppingCart{},
		items:   map[string][]models.CartItem{},
		updated: map[string]int{},
	}
}

func (f *fakeCartStore) GetCartBySession(_ context.Context, sessionID string) (*models.ShoppingCart, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.carts[sessionID], nil
}

func (f *fakeCartStore) GetCartItems(_ context.Context, cartID string) ([]models.CartItem, error) {
	return append([]models.CartItem{}, f.items[cartID]...), nil
}

func (f *fakeCartStore) GetProductsByIDs(_ context.Context, ids []string) ([]models.Product, error) {
	var out []models.Product
	for _, p := range f.products {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (f *fakeCartStore) GetInventoryByProductIDs(context.Context, []string) ([]models.Inventory, error) {
	return f.stock, nil
}

func (f *fakeCartStore) GetPrimaryImages(context.Context, []string) ([]models.ProductImage, error) {
	return f.images, nil
}

func (f *fakeCartStore) UpsertCart(_ context.Context, sessionID string) (string, error) {
	if f.writeErr != nil {
		return "", f.writeErr
	}
	if cart, ok := f.carts[sessionID]; ok {
		return cart.ID, nil
	}
	id := "cart-" + sessionID
	f.carts[sessionID] = &models.ShoppingCart{ID: id, SessionID: &sessionID}
	return id, nil
}

func (f *fakeCartStore) AddCartItem(_ context.Context, _ string, item *models.CartItem) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	item.ID = "item-" + item.ProductID
	item.AddedAt = time.Now()
	f.added = append(f.added, *item)
	return nil
}

func (f *fakeCartStore) UpdateCartItemQuantity(_ context.Context, _, itemID string, quantity int) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.updated[itemID] = quantity
	return nil
}

func (f *fakeCartStore) DeleteCartItem(_ context.Context, _, itemID string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.deleted = append(f.deleted, itemID)
	return nil
}

func (f *fakeCartStore) ClearCart(_ context.Context, sessionID string) (int64, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.cleared = append(f.cleared, sessionID)
	return 2, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	cart    []*models.CartEvent
	product []*models.ProductSavedEvent
	err     error
}

func (p *recordingPublisher) PublishCartEvent(_ context.Context, e *models.CartEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cart = append(p.cart, e)
	return p.err
}

func (p *recordingPublisher) PublishProductSaved(_ context.Context, e *models.ProductSavedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.product = append(p.product, e)
	return p.err
}

type fakeProductWriter struct {
	calls   []models.ProductPayload
	byKey   map[string]string
	err     error
	counter int
}

func (w *fakeProductWriter) SaveProduct(_ context.Context, p *models.ProductPayload) (string, bool, error) {
	w.calls = append(w.calls, *p)
	if w.err != nil {
		return "", false, w.err
	}
	if p.ID != "" {
		return p.ID, false, nil
	}
	if id, ok := w.byKey[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		return id, false, nil
	}
	w.counter++
	id := "prod-" + string(rune('0'+w.counter))
	if w.byKey == nil {
		w.byKey = map[string]string{}
	}
	w.byKey[p.IdempotencyKey] = id
	return id, true, nil
}

type memoryResults struct {
	values map[string]string
	err    error
}

func (m *memoryResults) RememberResult(_ context.Context, key, value string, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.values[key]; !ok {
		m.values[key] = value
	}
	return nil
}

func (m *memoryResults) LookupResult(_ context.Context, key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

type memoryLocks struct {
	held map[string]bool
}

func (l *memoryLocks) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memoryLocks) ReleaseLock(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(l.held, key)
	return nil
}

type fakeCodeStore struct {
	codes      []*models.TwoFactorCode
	markResult *bool
}

func (s *fakeCodeStore) CreateTwoFactorCode(_ context.Context, c *models.TwoFactorCode) error {
	c.ID = "code-" + string(rune('a'+len(s.codes)))
	c.CreatedAt = time.Now()
	copied := *c
	s.codes = append(s.codes, &copied)
	return nil
}

func (s *fakeCodeStore) LatestTwoFactorCode(_ context.Context, userID string) (*models.TwoFactorCode, error) {
	for i := len(s.codes) - 1; i >= 0; i-- {
		if s.codes[i].UserID == userID {
			copied := *s.codes[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeCodeStore) MarkTwoFactorVerified(_ context.Context, id string) (bool, error) {
	if s.markResult != nil {
		return *s.markResult, nil
	}
	for _, c := range s.codes {
		if c.ID == id {
			if c.Verified {
				return false, nil
			}
			c.Verified = true
			return true, nil
		}
	}
	return false, nil
}

type fakeMailer struct {
	configured bool
	sent       []mail.Message
	err        error
	onSend     func()
}

func (m *fakeMailer) Configured() bool { return m.configured }

func (m *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	if m.onSend != nil {
		m.onSend()
	}
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

var errDenied = apperr.New(apperr.Authorization, "Store", "permission denied for table cart_items")
