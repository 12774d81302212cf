package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/util"

	"go.uber.org/zap"
)

var (
	// ErrCaptchaMisconfigured means no secret key is configured
	ErrCaptchaMisconfigured = apperr.New(apperr.Unknown, "CaptchaService.Verify", "Server misconfigured")
	// ErrOriginNotAllowed is returned for browser origins outside the allow list
	ErrOriginNotAllowed = apperr.New(apperr.Authorization, "CaptchaService", "Origin not allowed")
)

// CaptchaVerdict is the provider's answer for one token
type CaptchaVerdict struct {
	Success     bool     `json:"success"`
	Hostname    string   `json:"hostname,omitempty"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	ErrorCodes  []string `json:"error_codes"`
	Action      string   `json:"action,omitempty"`
}

// CaptchaService verifies hCaptcha tokens server side
type CaptchaService struct {
	secretKey      string
	siteKey        string
	verifyURL      string
	allowedOrigins map[string]bool
	httpClient     *http.Client
	logger         *zap.Logger
}

// NewCaptchaService creates a CAPTCHA verifier. An empty allow list admits
// every origin.
func NewCaptchaService(secretKey, siteKey, verifyURL string, allowedOrigins []string) *CaptchaService {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &CaptchaService{
		secretKey:      secretKey,
		siteKey:        siteKey,
		verifyURL:      verifyURL,
		allowedOrigins: allowed,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		logger:         util.GetLogger(),
	}
}

// OriginAllowed reports whether a request from origin may use the verifier.
// Requests without an Origin header are not browser requests and pass.
func (s *CaptchaService) OriginAllowed(origin string) bool {
	if origin == "" || len(s.allowedOrigins) == 0 {
		return true
	}
	return s.allowedOrigins[origin]
}

// Verify asks the provider about token. A rejected token is a verdict with
// Success false, not an error.
func (s *CaptchaService) Verify(ctx context.Context, token, remoteIP, action string) (*CaptchaVerdict, error) {
	ctx, span := util.StartSpan(ctx, "CaptchaService.Verify")
	defer span.End()

	if s.secretKey == "" {
		s.logger.Error("hCaptcha secret key missing")
		util.CaptchaVerificationsTotal.WithLabelValues("misconfigured").Inc()
		return nil, ErrCaptchaMisconfigured
	}
	if token == "" {
		return nil, apperr.New(apperr.ClientInput, "CaptchaService.Verify", "Missing hCaptcha token")
	}

	verdict, err := s.siteverify(ctx, token, remoteIP)
	if err != nil {
		util.CaptchaVerificationsTotal.WithLabelValues("unavailable").Inc()
		s.logger.Error("hCaptcha verification unavailable", zap.Error(err))
		return nil, util.RecordError(span, apperr.Wrap(apperr.Transient, "CaptchaService.Verify", "Verification unavailable", err))
	}
	verdict.Action = action

	if verdict.Success {
		util.CaptchaVerificationsTotal.WithLabelValues("success").Inc()
	} else {
		util.CaptchaVerificationsTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn("hCaptcha validation failed",
			zap.Strings("error_codes", verdict.ErrorCodes),
			zap.String("action", action))
	}
	return verdict, nil
}

func (s *CaptchaService) siteverify(ctx context.Context, token, remoteIP string) (*CaptchaVerdict, error) {
	form := url.Values{}
	form.Set("secret", s.secretKey)
	form.Set("response", token)
	if s.siteKey != "" {
		form.Set("sitekey", s.siteKey)
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("provider returned %d", resp.StatusCode)
	}

	var raw struct {
		Success     bool     `json:"success"`
		Hostname    string   `json:"hostname"`
		ChallengeTS string   `json:"challenge_ts"`
		ErrorCodes  []string `json:"error-codes"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}

	codes := raw.ErrorCodes
	if codes == nil {
		codes = []string{}
	}
	return &CaptchaVerdict{
		Success:     raw.Success,
		Hostname:    raw.Hostname,
		ChallengeTS: raw.ChallengeTS,
		ErrorCodes:  codes,
	}, nil
}

// ClientIP picks the caller address from proxy headers, first hop of
// X-Forwarded-For winning.
func ClientIP(header http.Header) string {
	if fwd := header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip := header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	return header.Get("X-Real-IP")
}
