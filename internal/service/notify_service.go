package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/apperr"
	mailer "storefront/internal/mail"
	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

const ProviderMailto = "mailto"

// istZone is where customers read their timestamps
var istZone = time.FixedZone("IST", 5*3600+1800)

// Mailer is a Sender that can tell whether it has credentials
type Mailer interface {
	mailer.Sender
	Configured() bool
}

// OrderUpdate is one order status notification
type OrderUpdate struct {
	To             string
	OrderID        string
	Status         string
	TrackingNumber string
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
}

// NotifyResult describes how a notification went out. When no provider is
// configured Sent is false and Mailto carries a link the caller can open.
type NotifyResult struct {
	Provider string `json:"provider"`
	Sent     bool   `json:"ok"`
	Mailto   string `json:"mailto,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Text     string `json:"text,omitempty"`
}

// NotifyService emails customers about order status changes
type NotifyService struct {
	mailer Mailer
	logger *zap.Logger
}

// NewNotifyService creates a new notify service
func NewNotifyService(m Mailer) *NotifyService {
	return &NotifyService{
		mailer: m,
		logger: util.GetLogger(),
	}
}

// NotifyOrderUpdate sends the update, or returns a mailto fallback when no
// email provider is configured.
func (s *NotifyService) NotifyOrderUpdate(ctx context.Context, u OrderUpdate) (*NotifyResult, error) {
	ctx, span := util.StartSpan(ctx, "NotifyService.NotifyOrderUpdate")
	defer span.End()

	u.To = strings.TrimSpace(u.To)
	u.OrderID = strings.TrimSpace(u.OrderID)
	if u.To == "" || u.OrderID == "" {
		return nil, apperr.New(apperr.ClientInput, "NotifyService.NotifyOrderUpdate", "Missing 'to' or 'orderId'")
	}

	msg := BuildOrderUpdateMessage(u)

	if s.mailer == nil || !s.mailer.Configured() {
		util.NotificationsSentTotal.WithLabelValues(ProviderMailto, "fallback").Inc()
		return &NotifyResult{
			Provider: ProviderMailto,
			Mailto:   mailer.MailtoLink(msg),
			Subject:  msg.Subject,
			Text:     msg.Text,
		}, nil
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		util.NotificationsSentTotal.WithLabelValues(mailer.ProviderSendGrid, "error").Inc()
		s.logger.Error("Failed to send order update",
			zap.String("order_id", u.OrderID),
			zap.Error(err))
		return nil, util.RecordError(span, fmt.Errorf("failed to send order update: %w", err))
	}

	util.NotificationsSentTotal.WithLabelValues(mailer.ProviderSendGrid, "success").Inc()
	s.logger.Info("Order update sent", zap.String("order_id", u.OrderID), zap.String("status", u.Status))
	return &NotifyResult{Provider: mailer.ProviderSendGrid, Sent: true}, nil
}

// HandleOrderUpdated emails the customer for an ORDER_UPDATED event. Without a
// configured provider there is nobody to open a mailto link, so the event is
// logged and acknowledged.
func (s *NotifyService) HandleOrderUpdated(ctx context.Context, event *models.OrderUpdatedEvent) error {
	if event.Email == "" {
		s.logger.Warn("Order update without email", zap.String("order_id", event.OrderID))
		return nil
	}

	result, err := s.NotifyOrderUpdate(ctx, OrderUpdate{
		To:             event.Email,
		OrderID:        event.OrderID,
		Status:         event.Status,
		TrackingNumber: event.TrackingNumber,
		ShippedAt:      event.ShippedAt,
		DeliveredAt:    event.DeliveredAt,
	})
	if err != nil {
		return err
	}
	if !result.Sent {
		s.logger.Info("Email provider not configured, order update not sent",
			zap.String("order_id", event.OrderID))
	}
	return nil
}

// BuildOrderUpdateMessage renders the plain-text order update email
func BuildOrderUpdateMessage(u OrderUpdate) mailer.Message {
	status := strings.TrimSpace(u.Status)
	if status == "" {
		status = "updated"
	}

	lines := []string{
		fmt.Sprintf("Your order (%s) has been updated.", u.OrderID),
		"",
		"Status: " + status,
	}
	if tracking := strings.TrimSpace(u.TrackingNumber); tracking != "" {
		lines = append(lines, "Tracking number: "+tracking)
	}
	if u.ShippedAt != nil {
		lines = append(lines, "Shipped at: "+formatIST(*u.ShippedAt))
	}
	if u.DeliveredAt != nil {
		lines = append(lines, "Delivered at: "+formatIST(*u.DeliveredAt))
	}
	lines = append(lines, "", "Thank you for shopping with ACE#1.")

	return mailer.Message{
		To:      u.To,
		Subject: "ACE#1 Order Update: " + u.OrderID,
		Text:    strings.Join(lines, "\n"),
	}
}

func formatIST(t time.Time) string {
	return t.In(istZone).Format("2 Jan 2006, 3:04 pm IST")
}
