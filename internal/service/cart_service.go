package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrSessionRequired is returned for an empty session id
var ErrSessionRequired = apperr.New(apperr.ClientInput, "", "Session ID required")

// CartService assembles a session's cart with live catalog data. It reads
// through the privileged store, so the session id is the only cart selector
// it accepts.
type CartService struct {
	reader CartReader
	logger *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(reader CartReader) *CartService {
	return &CartService{
		reader: reader,
		logger: util.GetLogger(),
	}
}

// GetCart returns the session's cart lines. A session without a cart, or
// with an empty cart, yields an empty non-nil slice.
func (s *CartService) GetCart(ctx context.Context, sessionID string) ([]models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart", attribute.String("session_id", sessionID))
	defer span.End()

	if strings.TrimSpace(sessionID) == "" {
		util.CartLoadsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrSessionRequired
	}

	start := time.Now()
	defer func() {
		util.CartLoadLatency.Observe(time.Since(start).Seconds())
	}()

	lines, err := s.loadCart(ctx, sessionID)
	if err != nil {
		util.CartLoadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Failed to load cart", zap.String("session_id", sessionID), zap.Error(err))
		return nil, util.RecordError(span, apperr.Wrap(apperr.Transient, "CartService.GetCart", "unable to load cart", err))
	}

	util.CartLoadsTotal.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.Int("cart.lines", len(lines)))
	return lines, nil
}

func (s *CartService) loadCart(ctx context.Context, sessionID string) ([]models.CartLine, error) {
	lines := []models.CartLine{}

	cart, err := s.reader.GetCartBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}
	if cart == nil {
		return lines, nil
	}

	items, err := s.reader.GetCartItems(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}
	if len(items) == 0 {
		return lines, nil
	}

	productIDs := uniqueProductIDs(items)

	products, err := s.reader.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	inventory, err := s.reader.GetInventoryByProductIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}
	images, err := s.reader.GetPrimaryImages(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get product images: %w", err)
	}

	catalog := make(map[string]*models.CartProduct, len(products))
	for _, p := range products {
		catalog[p.ID] = &models.CartProduct{
			ID:         p.ID,
			Name:       p.Name,
			PriceCents: p.PriceCents,
			Inventory:  []models.Inventory{},
		}
	}
	for _, inv := range inventory {
		if cp, ok := catalog[inv.ProductID]; ok {
			cp.Inventory = append(cp.Inventory, inv)
		}
	}
	for _, img := range images {
		if cp, ok := catalog[img.ProductID]; ok {
			cp.ImageURL = img.StoragePath
		}
	}

	for _, item := range items {
		line := models.CartLine{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.Size,
			AddedAt:   item.AddedAt,
		}
		// lines share product data, so each gets its own copy
		if cp, ok := catalog[item.ProductID]; ok {
			product := *cp
			product.Inventory = append(make([]models.Inventory, 0, len(cp.Inventory)), cp.Inventory...)
			line.Product = &product
		}
		lines = append(lines, line)
	}

	return lines, nil
}

func uniqueProductIDs(items []models.CartItem) []string {
	seen := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}
