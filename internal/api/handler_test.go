package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/mail"
	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSession = "session_1767520800000_0123456789abcdef0123456789abcdef"

// cartFixture backs both the read and write sides of the cart service
type cartFixture struct {
	cart     *models.ShoppingCart
	items    []models.CartItem
	products []models.Product
	stock    []models.Inventory
	images   []models.ProductImage
	readErr  error
	writeErr error
	updated  map[string]int
	deleted  []string
}

func (f *cartFixture) GetCartBySession(_ context.Context, sessionID string) (*models.ShoppingCart, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.cart == nil || *f.cart.SessionID != sessionID {
		return nil, nil
	}
	return f.cart, nil
}

func (f *cartFixture) GetCartItems(context.Context, string) ([]models.CartItem, error) {
	return f.items, nil
}

func (f *cartFixture) GetProductsByIDs(context.Context, []string) ([]models.Product, error) {
	return f.products, nil
}

func (f *cartFixture) GetInventoryByProductIDs(context.Context, []string) ([]models.Inventory, error) {
	return f.stock, nil
}

func (f *cartFixture) GetPrimaryImages(context.Context, []string) ([]models.ProductImage, error) {
	return f.images, nil
}

func (f *cartFixture) UpsertCart(context.Context, string) (string, error) {
	return "cart-1", f.writeErr
}

func (f *cartFixture) AddCartItem(_ context.Context, _ string, item *models.CartItem) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	item.ID = "item-new"
	item.AddedAt = time.Date(2026, 1, 4, 10, 0, 0, 0, time.UTC)
	return nil
}

func (f *cartFixture) UpdateCartItemQuantity(_ context.Context, _, itemID string, quantity int) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.updated == nil {
		f.updated = map[string]int{}
	}
	f.updated[itemID] = quantity
	return nil
}

func (f *cartFixture) DeleteCartItem(_ context.Context, _, itemID string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.deleted = append(f.deleted, itemID)
	return nil
}

func (f *cartFixture) ClearCart(context.Context, string) (int64, error) {
	return 3, f.writeErr
}

func populatedCart() *cartFixture {
	session := testSession
	added := time.Date(2026, 1, 4, 10, 0, 0, 0, time.UTC)
	return &cartFixture{
		cart: &models.ShoppingCart{ID: "cart-1", SessionID: &session},
		items: []models.CartItem{
			{ID: "i1", CartID: "cart-1", ProductID: "p1", Quantity: 2, Size: "9", AddedAt: added},
			{ID: "i3", CartID: "cart-1", ProductID: "gone", Quantity: 1, AddedAt: added.Add(5 * time.Minute)},
		},
		products: []models.Product{{ID: "p1", Name: "Court Classic", PriceCents: 129900}},
		stock: []models.Inventory{
			{ProductID: "p1", Size: "10", Stock: 0},
			{ProductID: "p1", Size: "9", Stock: 4},
		},
		images: []models.ProductImage{{ProductID: "p1", StoragePath: "products/p1/front.jpg"}},
	}
}

func newRouter(h *Handler) *gin.Engine {
	router := gin.New()
	h.SetupRoutes(router)
	return router
}

func cartRouter(f *cartFixture) *gin.Engine {
	return newRouter(NewHandler(Services{
		Cart:    service.NewCartService(f),
		Mutator: service.NewCartMutator(f, nil),
	}, "", 0))
}

func do(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestGetCartWithSessionGolden(t *testing.T) {
	router := cartRouter(populatedCart())

	w := do(router, http.MethodPost, "/functions/v1/get_cart_with_session", gin.H{"session_id": testSession}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	golden(t).Assert(t, "cart_populated", w.Body.Bytes())

	w = do(router, http.MethodPost, "/functions/v1/get_cart_with_session", gin.H{"session_id": "session_other"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	golden(t).Assert(t, "cart_empty", w.Body.Bytes())

	w = do(router, http.MethodPost, "/functions/v1/get_cart_with_session", gin.H{}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	golden(t).Assert(t, "cart_missing_session", w.Body.Bytes())
}

func TestGetCartWithSessionFailure(t *testing.T) {
	f := populatedCart()
	f.readErr = errors.New("connection refused")

	w := do(cartRouter(f), http.MethodPost, "/functions/v1/get_cart_with_session", gin.H{"session_id": testSession}, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"unable to load cart"}`, w.Body.String())
}

func TestGetCartWithSessionUnreadableBody(t *testing.T) {
	f := populatedCart()
	h := NewHandler(Services{Cart: service.NewCartService(f)}, "", 0)
	core, logs := observer.New(zapcore.DebugLevel)
	h.logger = zap.New(core)

	w := do(newRouter(h), http.MethodPost, "/functions/v1/get_cart_with_session", `{not json`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Session ID required"}`, w.Body.String())

	entries := logs.FilterMessage("Ignoring unreadable cart request body").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Contains(t, entries[0].ContextMap(), "error")
}

func TestGetCartWithSessionIgnoresForeignSelectors(t *testing.T) {
	w := do(cartRouter(populatedCart()), http.MethodPost, "/functions/v1/get_cart_with_session",
		`{"session_id":"session_other","cart_id":"cart-1","user_id":"u1"}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, w.Body.String())
}

func TestPreflight(t *testing.T) {
	w := do(cartRouter(populatedCart()), http.MethodOptions, "/functions/v1/get_cart_with_session", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "x-client-info, apikey")
}

type productWriterFunc func(context.Context, *models.ProductPayload) (string, bool, error)

func (f productWriterFunc) SaveProduct(ctx context.Context, p *models.ProductPayload) (string, bool, error) {
	return f(ctx, p)
}

func TestAdminSave(t *testing.T) {
	var saved *models.ProductPayload
	writer := productWriterFunc(func(_ context.Context, p *models.ProductPayload) (string, bool, error) {
		saved = p
		return "prod-1", true, nil
	})
	router := newRouter(NewHandler(Services{
		Admin: service.NewAdminService(writer, nil, nil, time.Hour),
	}, "admin-secret", 0))

	body := gin.H{
		"action":          "save_product",
		"product":         gin.H{"name": "Court Classic", "price_cents": 129900},
		"inventory":       []gin.H{{"size": "9", "stock": 4}},
		"image_url":       "products/new.jpg",
		"idempotency_key": "key-1",
	}

	w := do(router, http.MethodPost, "/functions/v1/admin-save", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/functions/v1/admin-save", body, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Nil(t, saved)

	w = do(router, http.MethodPost, "/functions/v1/admin-save", body, map[string]string{"Authorization": "Bearer admin-secret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"id":"prod-1","created":true,"replayed":false}`, w.Body.String())

	require.NotNil(t, saved)
	assert.Equal(t, "key-1", saved.IdempotencyKey)
	assert.Equal(t, "products/new.jpg", saved.ImageURL)
	assert.Equal(t, []models.InventoryRow{{Size: "9", Stock: 4}}, saved.Inventory)
}

func TestAdminSaveRejections(t *testing.T) {
	writer := productWriterFunc(func(context.Context, *models.ProductPayload) (string, bool, error) {
		return "", false, apperr.Wrap(apperr.Unknown, "Store.SaveProduct", "", errors.New("pq: deadlock"))
	})
	router := newRouter(NewHandler(Services{
		Admin: service.NewAdminService(writer, nil, nil, time.Hour),
	}, "admin-secret", 0))
	auth := map[string]string{"Authorization": "Bearer admin-secret"}

	w := do(router, http.MethodPost, "/functions/v1/admin-save", gin.H{"action": "reset_password"}, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid action"}`, w.Body.String())

	w = do(router, http.MethodPost, "/functions/v1/admin-save", gin.H{"action": "save_product"}, auth)
	assert.JSONEq(t, `{"success":false,"error":"Missing product data"}`, w.Body.String())

	w = do(router, http.MethodPost, "/functions/v1/admin-save",
		gin.H{"action": "save_product", "product": gin.H{"name": "", "price_cents": 1}}, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"product name is required"}`, w.Body.String())

	w = do(router, http.MethodPost, "/functions/v1/admin-save",
		gin.H{"action": "save_product", "product": gin.H{"name": "x", "price_cents": 1}}, auth)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Failed to save product"}`, w.Body.String())
}

func TestAdminSaveWithoutConfiguredToken(t *testing.T) {
	router := newRouter(NewHandler(Services{}, "", 0))

	w := do(router, http.MethodPost, "/functions/v1/admin-save", gin.H{}, map[string]string{"Authorization": "Bearer anything"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReadiness(t *testing.T) {
	healthy := ReadinessCheck{Name: "database", Check: func(context.Context) error { return nil }}
	router := newRouter(NewHandler(Services{}, "", 0, healthy))
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/ready", nil, nil).Code)

	broken := ReadinessCheck{Name: "redis", Check: func(context.Context) error { return errors.New("dial tcp: refused") }}
	router = newRouter(NewHandler(Services{}, "", 0, healthy, broken))
	w := do(router, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"check":"redis"`)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", nil, nil).Code)
}

func TestStatusFor(t *testing.T) {
	tests := map[apperr.Kind]int{
		apperr.ClientInput:       http.StatusBadRequest,
		apperr.Authorization:     http.StatusForbidden,
		apperr.NotFound:          http.StatusNotFound,
		apperr.Conflict:          http.StatusConflict,
		apperr.Expired:           http.StatusGone,
		apperr.Throttled:         http.StatusTooManyRequests,
		apperr.UpstreamRejection: http.StatusBadGateway,
		apperr.Transient:         http.StatusServiceUnavailable,
		apperr.Unknown:           http.StatusInternalServerError,
	}
	for kind, status := range tests {
		assert.Equal(t, status, statusFor(apperr.New(kind, "op", "msg")), kind.String())
	}
}

type stubMailer struct {
	configured bool
	err        error
}

func (m stubMailer) Configured() bool                          { return m.configured }
func (m stubMailer) Send(context.Context, mail.Message) error { return m.err }

func TestNotifyOrderUpdate(t *testing.T) {
	router := newRouter(NewHandler(Services{Notify: service.NewNotifyService(stubMailer{})}, "", 0))

	w := do(router, http.MethodPost, "/functions/v1/notify-order-update", gin.H{"to": "a@b.com", "orderId": "ORD-42", "status": "shipped"}, nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "mailto", body["provider"])
	assert.Contains(t, body["mailto"], "mailto:a%40b.com")

	w = do(router, http.MethodPost, "/functions/v1/notify-order-update", gin.H{"to": "a@b.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	router = newRouter(NewHandler(Services{Notify: service.NewNotifyService(stubMailer{configured: true})}, "", 0))
	w = do(router, http.MethodPost, "/functions/v1/notify-order-update", gin.H{"to": "a@b.com", "order_id": "ORD-42"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"provider":"sendgrid"}`, w.Body.String())

	router = newRouter(NewHandler(Services{Notify: service.NewNotifyService(stubMailer{
		configured: true,
		err:        apperr.New(apperr.UpstreamRejection, "SendGrid.Send", "email provider returned 400"),
	})}, "", 0))
	w = do(router, http.MethodPost, "/functions/v1/notify-order-update", gin.H{"to": "a@b.com", "order_id": "ORD-42"}, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}
