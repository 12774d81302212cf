package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SaveProductResult is the privileged endpoint's answer
type SaveProductResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
	// Replayed is set when the idempotency key had already been applied
	Replayed bool `json:"replayed,omitempty"`
}

// AdminService performs catalog writes with the service credential. It sits
// behind the admin-save endpoint and is only reached after a direct write was
// refused by row-level security.
type AdminService struct {
	products       ProductWriter
	results        ResultCache
	events         ProductEventPublisher
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewAdminService creates a new admin service. results and events may be nil.
func NewAdminService(products ProductWriter, results ResultCache, events ProductEventPublisher, idempotencyTTL time.Duration) *AdminService {
	return &AdminService{
		products:       products,
		results:        results,
		events:         events,
		idempotencyTTL: idempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// SaveProduct applies a write intent. Replaying an idempotency key returns
// the product created by the first request instead of writing again.
func (s *AdminService) SaveProduct(ctx context.Context, p *models.ProductPayload) (*SaveProductResult, error) {
	ctx, span := util.StartSpan(ctx, "AdminService.SaveProduct")
	defer span.End()

	if err := p.Validate(); err != nil {
		util.AdminSaveAttemptsTotal.WithLabelValues("privileged", "invalid").Inc()
		return nil, err
	}
	span.SetAttributes(attribute.String("idempotency_key", p.IdempotencyKey))

	if id, ok := s.lookup(ctx, p.IdempotencyKey); ok {
		util.AdminSaveIdempotentHitsTotal.Inc()
		s.logger.Info("Duplicate product save detected",
			zap.String("idempotency_key", p.IdempotencyKey),
			zap.String("product_id", id))
		return &SaveProductResult{ID: id, Replayed: true}, nil
	}

	id, created, err := s.products.SaveProduct(ctx, p)
	if err != nil {
		util.AdminSaveAttemptsTotal.WithLabelValues("privileged", apperr.KindOf(err).String()).Inc()
		s.logger.Error("Privileged product save failed",
			zap.String("product_id", p.ID),
			zap.String("idempotency_key", p.IdempotencyKey),
			zap.Error(err))
		return nil, util.RecordError(span, fmt.Errorf("failed to save product: %w", err))
	}
	util.AdminSaveAttemptsTotal.WithLabelValues("privileged", "success").Inc()

	s.remember(ctx, p.IdempotencyKey, id)

	if s.events != nil {
		event := &models.ProductSavedEvent{
			BaseEvent:      broker.NewBaseEvent(models.EventTypeProductSaved),
			ProductID:      id,
			IdempotencyKey: p.IdempotencyKey,
			Created:        created,
		}
		if err := s.events.PublishProductSaved(ctx, event); err != nil {
			s.logger.Error("Failed to publish ProductSaved event", zap.String("product_id", id), zap.Error(err))
		}
	}

	s.logger.Info("Product saved",
		zap.String("product_id", id),
		zap.Bool("created", created))

	// the unique idempotency column also reports replays that missed the cache
	return &SaveProductResult{ID: id, Created: created, Replayed: p.IdempotencyKey != "" && !created && p.ID == ""}, nil
}

func (s *AdminService) lookup(ctx context.Context, key string) (string, bool) {
	if key == "" || s.results == nil {
		return "", false
	}
	id, ok, err := s.results.LookupResult(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency lookup failed, relying on database", zap.Error(err))
		return "", false
	}
	return id, ok
}

func (s *AdminService) remember(ctx context.Context, key, id string) {
	if key == "" || s.results == nil {
		return
	}
	if err := s.results.RememberResult(ctx, key, id, s.idempotencyTTL); err != nil {
		s.logger.Warn("Failed to record idempotency key", zap.String("idempotency_key", key), zap.Error(err))
	}
}
