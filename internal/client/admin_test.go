package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDirect struct {
	err   error
	id    string
	calls []models.ProductPayload
}

func (d *stubDirect) SaveProduct(_ context.Context, p *models.ProductPayload) (string, bool, error) {
	d.calls = append(d.calls, *p)
	if d.err != nil {
		return "", false, d.err
	}
	return d.id, true, nil
}

type stubFallback struct {
	err   error
	id    string
	calls []models.ProductPayload
}

func (f *stubFallback) AdminSave(_ context.Context, p *models.ProductPayload) (string, error) {
	f.calls = append(f.calls, *p)
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

func validPayload() *models.ProductPayload {
	return &models.ProductPayload{Name: "Court Classic", PriceCents: 129900}
}

func denied() error {
	return store.ClassifyError("Store.SaveProduct", &pq.Error{Code: "42501", Message: "permission denied for table products"})
}

func TestDirectSuccessSkipsFallback(t *testing.T) {
	direct := &stubDirect{id: "D1"}
	fallback := &stubFallback{id: "X"}

	res, err := NewAdminWriter(direct, fallback).SaveProduct(context.Background(), validPayload())
	require.NoError(t, err)

	assert.Equal(t, &SaveResult{ID: "D1", Via: models.SaveViaDirect}, res)
	assert.Len(t, direct.calls, 1)
	assert.Empty(t, fallback.calls)
}

func TestPermissionDeniedFallsBackOnce(t *testing.T) {
	direct := &stubDirect{err: denied()}
	fallback := &stubFallback{id: "X"}

	res, err := NewAdminWriter(direct, fallback).SaveProduct(context.Background(), validPayload())
	require.NoError(t, err)

	assert.Equal(t, &SaveResult{ID: "X", Via: models.SaveViaFallback}, res)
	assert.Len(t, direct.calls, 1)
	require.Len(t, fallback.calls, 1)

	// both attempts carry the same generated key
	assert.NotEmpty(t, direct.calls[0].IdempotencyKey)
	assert.Equal(t, direct.calls[0].IdempotencyKey, fallback.calls[0].IdempotencyKey)
}

func TestHeuristicPermissionMessageFallsBack(t *testing.T) {
	direct := &stubDirect{err: store.ClassifyError("Store.SaveProduct",
		errors.New(`new row violates row-level security policy for table "products"`))}
	fallback := &stubFallback{id: "X"}

	res, err := NewAdminWriter(direct, fallback).SaveProduct(context.Background(), validPayload())
	require.NoError(t, err)
	assert.Equal(t, models.SaveViaFallback, res.Via)
}

func TestUpdateHiddenByPolicyFallsBack(t *testing.T) {
	payload := validPayload()
	payload.ID = "3f1c2a8e-4b6d-4f0a-9c1e-2d7b5a6e8f90"

	direct := &stubDirect{err: store.UnmatchedUpdateError("Store.SaveProduct", "products", true)}
	fallback := &stubFallback{id: payload.ID}

	res, err := NewAdminWriter(direct, fallback).SaveProduct(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, &SaveResult{ID: payload.ID, Via: models.SaveViaFallback}, res)
	require.Len(t, fallback.calls, 1)
	assert.Equal(t, payload.ID, fallback.calls[0].ID)
}

func TestUpdateOfMissingProductDoesNotFallBack(t *testing.T) {
	payload := validPayload()
	payload.ID = "3f1c2a8e-4b6d-4f0a-9c1e-2d7b5a6e8f90"

	direct := &stubDirect{err: store.UnmatchedUpdateError("Store.SaveProduct", "products", false)}
	fallback := &stubFallback{id: "X"}

	_, err := NewAdminWriter(direct, fallback).SaveProduct(context.Background(), payload)
	assert.True(t, apperr.Is(err, apperr.NotFound))
	assert.Empty(t, fallback.calls)
}

func TestNonAuthorizationErrorNeverFallsBack(t *testing.T) {
	failures := []error{
		store.ClassifyError("Store.SaveProduct", &pq.Error{Code: "23514", Message: "violates check constraint"}),
		store.ClassifyError("Store.SaveProduct", context.DeadlineExceeded),
		store.ClassifyError("Store.SaveProduct", errors.New("something odd")),
	}

	for _, failure := range failures {
		direct := &stubDirect{err: failure}
		fallback := &stubFallback{id: "X"}

		_, err := NewAdminWriter(direct, fallback).SaveProduct(context.Background(), validPayload())
		assert.Equal(t, failure, err)
		assert.Empty(t, fallback.calls)
	}
}

func TestInvalidPayloadMakesNoAttempt(t *testing.T) {
	direct := &stubDirect{id: "D1"}
	fallback := &stubFallback{id: "X"}

	p := validPayload()
	p.Name = ""
	_, err := NewAdminWriter(direct, fallback).SaveProduct(context.Background(), p)

	assert.True(t, apperr.Is(err, apperr.ClientInput))
	assert.Empty(t, direct.calls)
	assert.Empty(t, fallback.calls)
}

func TestFallbackRejectionIsTerminal(t *testing.T) {
	direct := &stubDirect{err: denied()}
	fallback := &stubFallback{err: apperr.New(apperr.UpstreamRejection, "client.AdminSave", "write rejected by privileged endpoint: Not authorized")}

	_, err := NewAdminWriter(direct, fallback).SaveProduct(context.Background(), validPayload())
	assert.True(t, apperr.Is(err, apperr.UpstreamRejection))
	assert.Len(t, fallback.calls, 1)
}

func TestCallerKeyIsKeptAndPayloadUntouched(t *testing.T) {
	direct := &stubDirect{err: denied()}
	fallback := &stubFallback{id: "X"}

	p := validPayload()
	p.IdempotencyKey = "caller-key"
	_, err := NewAdminWriter(direct, fallback).SaveProduct(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "caller-key", fallback.calls[0].IdempotencyKey)

	p = validPayload()
	_, err = NewAdminWriter(direct, fallback).SaveProduct(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, p.IdempotencyKey)
}

func TestNoDirectCredentialGoesStraightToFallback(t *testing.T) {
	fallback := &stubFallback{id: "X"}

	res, err := NewAdminWriter(nil, fallback).SaveProduct(context.Background(), validPayload())
	require.NoError(t, err)
	assert.Equal(t, models.SaveViaFallback, res.Via)
}

// End to end over HTTP: the direct write is denied and the privileged
// endpoint accepts.
func TestFallbackOverHTTP(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []adminSaveRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/admin-save", r.URL.Path)
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))

		var req adminSaveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()

		assert.Equal(t, req.IdempotencyKey, r.Header.Get("Idempotency-Key"))
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "id": "X"})
	}))
	defer srv.Close()

	direct := &stubDirect{err: store.ClassifyError("Store.SaveProduct", errors.New("permission denied for table products"))}
	api := New(srv.URL, "anon", WithAdminToken("admin-token"))

	res, err := NewAdminWriter(direct, api).SaveProduct(context.Background(), validPayload())
	require.NoError(t, err)

	assert.Equal(t, &SaveResult{ID: "X", Via: models.SaveViaFallback}, res)
	require.Len(t, seen, 1)
	assert.Equal(t, "save_product", seen[0].Action)
	assert.Equal(t, direct.calls[0].IdempotencyKey, seen[0].IdempotencyKey)
}

func TestAdminSaveErrorKinds(t *testing.T) {
	status := http.StatusBadRequest
	body := map[string]interface{}{"success": false, "error": "price must not be negative"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	api := New(srv.URL, "anon", WithAdminToken("t"))
	p := validPayload()

	_, err := api.AdminSave(context.Background(), p)
	assert.True(t, apperr.Is(err, apperr.UpstreamRejection))
	assert.Contains(t, err.Error(), "write rejected by privileged endpoint: price must not be negative")

	status = http.StatusOK
	body = map[string]interface{}{"success": false, "error": "Product save returned no data"}
	_, err = api.AdminSave(context.Background(), p)
	assert.True(t, apperr.Is(err, apperr.UpstreamRejection))

	status = http.StatusServiceUnavailable
	_, err = api.AdminSave(context.Background(), p)
	assert.True(t, apperr.Is(err, apperr.Transient))

	srv.Close()
	_, err = api.AdminSave(context.Background(), p)
	assert.True(t, apperr.Is(err, apperr.Transient))
}
