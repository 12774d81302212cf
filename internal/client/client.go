// Package client talks to the storefront's HTTP surface: the edge functions
// and the session-scoped cart API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

const sessionHeader = "X-Session-ID"

// Client is the storefront API client.
type Client struct {
	baseURL    string
	anonKey    string
	adminToken string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithAdminToken sets the bearer token sent to the privileged endpoint
func WithAdminToken(token string) Option {
	return func(c *Client) { c.adminToken = token }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new API client. anonKey is the public key every browser holds.
func New(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type cartResponse struct {
	Success bool              `json:"success"`
	Data    []models.CartLine `json:"data"`
	Error   string            `json:"error"`
}

// GetCart loads the session's cart through the aggregation function.
func (c *Client) GetCart(ctx context.Context, sessionID string) ([]models.CartLine, error) {
	var resp cartResponse
	err := c.post(ctx, "/functions/v1/get_cart_with_session", map[string]string{"session_id": sessionID}, &resp, nil)
	if err != nil {
		return nil, classify("client.GetCart", err)
	}
	if !resp.Success {
		return nil, apperr.New(apperr.Transient, "client.GetCart", resp.Error)
	}
	if resp.Data == nil {
		resp.Data = []models.CartLine{}
	}
	return resp.Data, nil
}

// EnsureCart returns the session's cart id, creating the cart if needed.
func (c *Client) EnsureCart(ctx context.Context, sessionID string) (string, error) {
	var resp struct {
		CartID string `json:"cart_id"`
	}
	if err := c.post(ctx, "/api/v1/cart", nil, &resp, sessionHeaders(sessionID)); err != nil {
		return "", classify("client.EnsureCart", err)
	}
	return resp.CartID, nil
}

// AddItem adds quantity units of a product/size to the cart.
func (c *Client) AddItem(ctx context.Context, sessionID, cartID, productID string, quantity int, size string) (*models.CartItem, error) {
	body := map[string]interface{}{
		"cart_id":    cartID,
		"product_id": productID,
		"quantity":   quantity,
		"size":       size,
	}
	var resp struct {
		Item models.CartItem `json:"item"`
	}
	if err := c.post(ctx, "/api/v1/cart/items", body, &resp, sessionHeaders(sessionID)); err != nil {
		return nil, classify("client.AddItem", err)
	}
	return &resp.Item, nil
}

// UpdateQuantity sets a line's quantity. Zero or less removes the line.
func (c *Client) UpdateQuantity(ctx context.Context, sessionID, itemID string, quantity int) error {
	if quantity <= 0 {
		return c.RemoveItem(ctx, sessionID, itemID)
	}
	path := "/api/v1/cart/items/" + url.PathEscape(itemID)
	body := map[string]int{"quantity": quantity}
	if err := c.doRequest(ctx, http.MethodPatch, path, body, nil, sessionHeaders(sessionID)); err != nil {
		return classify("client.UpdateQuantity", err)
	}
	return nil
}

// RemoveItem deletes a line.
func (c *Client) RemoveItem(ctx context.Context, sessionID, itemID string) error {
	path := "/api/v1/cart/items/" + url.PathEscape(itemID)
	if err := c.doRequest(ctx, http.MethodDelete, path, nil, nil, sessionHeaders(sessionID)); err != nil {
		return classify("client.RemoveItem", err)
	}
	return nil
}

// ClearCart empties the cart and reports how many lines were removed.
func (c *Client) ClearCart(ctx context.Context, sessionID string) (int64, error) {
	var resp struct {
		Removed int64 `json:"removed"`
	}
	if err := c.doRequest(ctx, http.MethodDelete, "/api/v1/cart/items", nil, &resp, sessionHeaders(sessionID)); err != nil {
		return 0, classify("client.ClearCart", err)
	}
	return resp.Removed, nil
}

type adminSaveRequest struct {
	Action         string                 `json:"action"`
	Product        *models.ProductPayload `json:"product"`
	Inventory      []models.InventoryRow  `json:"inventory,omitempty"`
	ImageURL       string                 `json:"image_url,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key"`
}

type adminSaveResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

// AdminSave writes a product through the privileged endpoint. A refusal (4xx
// or success:false) is UpstreamRejection; transport failures and 5xx are
// Transient and safe to retry with the same idempotency key.
func (c *Client) AdminSave(ctx context.Context, p *models.ProductPayload) (string, error) {
	const op = "client.AdminSave"

	req := adminSaveRequest{
		Action:         "save_product",
		Product:        p,
		Inventory:      p.Inventory,
		ImageURL:       p.ImageURL,
		IdempotencyKey: p.IdempotencyKey,
	}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.adminToken)
	headers.Set("Idempotency-Key", p.IdempotencyKey)

	var resp adminSaveResponse
	err := c.post(ctx, "/functions/v1/admin-save", req, &resp, headers)

	var httpErr *HTTPError
	switch {
	case errors.As(err, &httpErr) && httpErr.StatusCode < 500:
		return "", rejected(op, httpErr.Message)
	case err != nil:
		return "", apperr.Wrap(apperr.Transient, op, "privileged endpoint unavailable", err)
	case !resp.Success || resp.ID == "":
		return "", rejected(op, resp.Error)
	}
	return resp.ID, nil
}

func rejected(op, diagnostic string) error {
	if diagnostic == "" {
		diagnostic = "no diagnostic"
	}
	return apperr.New(apperr.UpstreamRejection, op, "write rejected by privileged endpoint: "+diagnostic)
}

// CaptchaResult is the verification endpoint's answer
type CaptchaResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details struct {
		ErrorCodes []string `json:"error_codes"`
	} `json:"details"`
}

// VerifyCaptcha submits a CAPTCHA token for server-side verification. A
// rejected token yields Success false and no error.
func (c *Client) VerifyCaptcha(ctx context.Context, token, action string) (*CaptchaResult, error) {
	var res CaptchaResult
	err := c.post(ctx, "/functions/v1/verify-hcaptcha", map[string]string{"token": token, "action": action}, &res, nil)
	if IsStatus(err, http.StatusBadRequest) && token != "" {
		return &CaptchaResult{Error: "Verification failed"}, nil
	}
	if err != nil {
		return nil, classify("client.VerifyCaptcha", err)
	}
	return &res, nil
}

func sessionHeaders(sessionID string) http.Header {
	h := http.Header{}
	h.Set(sessionHeader, sessionID)
	return h
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}, headers http.Header) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out, headers)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}, headers http.Header) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
