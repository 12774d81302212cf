package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	"storefront/internal/apperr"
	mailer "storefront/internal/mail"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	issueThrottle = time.Minute
	// releasing the throttle must outlive a request that was cancelled mid-send
	releaseTimeout = 2 * time.Second
)

var inputs = validator.New()

// ErrInvalidCode is returned when a submitted code does not match
var ErrInvalidCode = apperr.New(apperr.ClientInput, "TwoFactorService.Verify", "Invalid code")

// TwoFactorService issues and verifies six-digit email codes
type TwoFactorService struct {
	codes  CodeStore
	locks  Locker
	sender mailer.Sender
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewTwoFactorService creates a new 2FA service. locks may be nil, which
// disables issuance throttling.
func NewTwoFactorService(codes CodeStore, locks Locker, sender mailer.Sender, ttl time.Duration) *TwoFactorService {
	return &TwoFactorService{
		codes:  codes,
		locks:  locks,
		sender: sender,
		ttl:    ttl,
		now:    time.Now,
		logger: util.GetLogger(),
	}
}

// Issue stores a new code for the user and emails it. A user may be issued at
// most one code per minute.
func (s *TwoFactorService) Issue(ctx context.Context, userID, email string) (*models.TwoFactorCode, error) {
	const op = "TwoFactorService.Issue"

	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	if userID == "" {
		return nil, apperr.New(apperr.ClientInput, op, "user_id is required")
	}
	if err := inputs.Var(email, "required,email"); err != nil {
		return nil, apperr.New(apperr.ClientInput, op, "a valid email is required")
	}

	lockKey := "2fa:" + userID
	if s.locks != nil {
		acquired, err := s.locks.AcquireLock(ctx, lockKey, issueThrottle)
		if err != nil {
			s.logger.Warn("2FA throttle unavailable", zap.String("user_id", userID), zap.Error(err))
		} else if !acquired {
			return nil, apperr.New(apperr.Throttled, op, "a code was sent recently, try again in a minute")
		}
	}

	code, err := s.issue(ctx, userID, email)
	if err != nil {
		// let the user retry straight away
		if s.locks != nil {
			s.releaseThrottle(lockKey)
		}
		return nil, util.RecordError(span, err)
	}

	util.TwoFactorCodesIssuedTotal.Inc()
	s.logger.Info("2FA code issued", zap.String("user_id", userID), zap.Time("expires_at", code.ExpiresAt))
	return code, nil
}

func (s *TwoFactorService) releaseThrottle(lockKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if err := s.locks.ReleaseLock(ctx, lockKey); err != nil {
		s.logger.Warn("Failed to release 2FA throttle", zap.String("lock", lockKey), zap.Error(err))
	}
}

func (s *TwoFactorService) issue(ctx context.Context, userID, email string) (*models.TwoFactorCode, error) {
	digits, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code: %w", err)
	}

	code := &models.TwoFactorCode{
		UserID:    userID,
		Code:      digits,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.codes.CreateTwoFactorCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to store code: %w", err)
	}

	msg := mailer.Message{
		To:      email,
		Subject: "Your ACE#1 verification code",
		Text: fmt.Sprintf("Your verification code is %s.\n\nIt expires in %d minutes. If you did not request it, ignore this email.",
			digits, int(s.ttl.Minutes())),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to send code: %w", err)
	}
	return code, nil
}

// Verify checks code against the user's most recent code and marks it used.
// Expiry is checked before the code is compared.
func (s *TwoFactorService) Verify(ctx context.Context, userID, code string) error {
	const op = "TwoFactorService.Verify"

	ctx, span := util.StartSpan(ctx, op)
	defer span.End()

	err := s.verify(ctx, op, userID, strings.TrimSpace(code))

	result := "success"
	if err != nil {
		result = apperr.KindOf(err).String()
	}
	util.TwoFactorVerificationsTotal.WithLabelValues(result).Inc()

	if err != nil {
		s.logger.Info("2FA verification refused", zap.String("user_id", userID), zap.Error(err))
		return util.RecordError(span, err)
	}
	return nil
}

func (s *TwoFactorService) verify(ctx context.Context, op, userID, code string) error {
	if userID == "" || code == "" {
		return apperr.New(apperr.ClientInput, op, "Missing user_id or code")
	}

	latest, err := s.codes.LatestTwoFactorCode(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load code: %w", err)
	}
	if latest == nil {
		return apperr.New(apperr.NotFound, op, "No valid 2FA code found")
	}
	if latest.Verified {
		return apperr.New(apperr.Conflict, op, "Code already used")
	}
	if !s.now().Before(latest.ExpiresAt) {
		return apperr.New(apperr.Expired, op, "Code expired")
	}
	if subtle.ConstantTimeCompare([]byte(latest.Code), []byte(code)) != 1 {
		return ErrInvalidCode
	}

	marked, err := s.codes.MarkTwoFactorVerified(ctx, latest.ID)
	if err != nil {
		return fmt.Errorf("failed to mark code verified: %w", err)
	}
	if !marked {
		return apperr.New(apperr.Conflict, op, "Code already used")
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
