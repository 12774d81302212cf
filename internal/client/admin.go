package client

import (
	"context"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DirectWriter writes a product with the admin's own database credential,
// where row-level security may refuse it.
type DirectWriter interface {
	SaveProduct(ctx context.Context, p *models.ProductPayload) (id string, created bool, err error)
}

// FallbackWriter writes a product through the privileged endpoint.
type FallbackWriter interface {
	AdminSave(ctx context.Context, p *models.ProductPayload) (string, error)
}

// SaveResult reports the saved product and which path stored it.
type SaveResult struct {
	ID  string `json:"id"`
	Via string `json:"via"`
}

// AdminWriter saves products directly and, only when the direct write is
// denied by access control, once more through the privileged endpoint.
type AdminWriter struct {
	direct   DirectWriter
	fallback FallbackWriter
	newKey   func() string
	logger   *zap.Logger
}

// NewAdminWriter creates an admin writer. A nil direct writer means no
// database credential is available and every save goes to the fallback.
func NewAdminWriter(direct DirectWriter, fallback FallbackWriter) *AdminWriter {
	return &AdminWriter{
		direct:   direct,
		fallback: fallback,
		newKey:   uuid.NewString,
		logger:   util.GetLogger(),
	}
}

// SaveProduct runs the write-with-fallback protocol. The idempotency key is
// fixed before the first attempt so both attempts carry the same key.
func (w *AdminWriter) SaveProduct(ctx context.Context, payload *models.ProductPayload) (*SaveResult, error) {
	ctx, span := util.StartSpan(ctx, "AdminWriter.SaveProduct")
	defer span.End()

	if err := payload.Validate(); err != nil {
		return nil, err
	}

	p := *payload
	if p.IdempotencyKey == "" {
		p.IdempotencyKey = w.newKey()
	}

	if w.direct != nil {
		id, _, err := w.direct.SaveProduct(ctx, &p)
		if err == nil {
			util.AdminSaveAttemptsTotal.WithLabelValues(models.SaveViaDirect, "success").Inc()
			return &SaveResult{ID: id, Via: models.SaveViaDirect}, nil
		}

		kind := apperr.KindOf(err)
		util.AdminSaveAttemptsTotal.WithLabelValues(models.SaveViaDirect, kind.String()).Inc()
		if kind != apperr.Authorization {
			return nil, util.RecordError(span, err)
		}

		w.logger.Warn("Direct product write denied, retrying via privileged endpoint",
			zap.String("idempotency_key", p.IdempotencyKey),
			zap.Error(err))
	}

	id, err := w.fallback.AdminSave(ctx, &p)
	if err != nil {
		util.AdminSaveAttemptsTotal.WithLabelValues(models.SaveViaFallback, apperr.KindOf(err).String()).Inc()
		w.logger.Error("Privileged product write failed",
			zap.String("idempotency_key", p.IdempotencyKey),
			zap.Error(err))
		return nil, util.RecordError(span, err)
	}

	util.AdminSaveAttemptsTotal.WithLabelValues(models.SaveViaFallback, "success").Inc()
	return &SaveResult{ID: id, Via: models.SaveViaFallback}, nil
}
