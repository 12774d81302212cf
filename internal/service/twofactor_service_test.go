package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTwoFactor(codes *fakeCodeStore, sender *fakeMailer, now time.Time) *TwoFactorService {
	svc := NewTwoFactorService(codes, &memoryLocks{held: map[string]bool{}}, sender, 10*time.Minute)
	svc.now = func() time.Time { return now }
	return svc
}

func TestIssueStoresAndEmailsCode(t *testing.T) {
	now := time.Date(2026, 1, 4, 10, 0, 0, 0, time.UTC)
	codes := &fakeCodeStore{}
	sender := &fakeMailer{configured: true}
	svc := newTwoFactor(codes, sender, now)

	code, err := svc.Issue(context.Background(), "u1", "shopper@example.com")
	require.NoError(t, err)

	assert.Regexp(t, `^\d{6}$`, code.Code)
	assert.Equal(t, now.Add(10*time.Minute), code.ExpiresAt)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, code.Code)
	assert.Equal(t, "shopper@example.com", sender.sent[0].To)
}

func TestIssueThrottledPerUser(t *testing.T) {
	svc := newTwoFactor(&fakeCodeStore{}, &fakeMailer{configured: true}, time.Now())

	_, err := svc.Issue(context.Background(), "u1", "a@b.com")
	require.NoError(t, err)

	_, err = svc.Issue(context.Background(), "u1", "a@b.com")
	assert.True(t, apperr.Is(err, apperr.Throttled))

	_, err = svc.Issue(context.Background(), "u2", "c@d.com")
	assert.NoError(t, err)
}

func TestIssueReleasesThrottleOnFailure(t *testing.T) {
	sender := &fakeMailer{err: apperr.New(apperr.Transient, "SendGrid.Send", "email provider unreachable")}
	svc := newTwoFactor(&fakeCodeStore{}, sender, time.Now())

	_, err := svc.Issue(context.Background(), "u1", "a@b.com")
	assert.True(t, apperr.Is(err, apperr.Transient))

	sender.err = nil
	_, err = svc.Issue(context.Background(), "u1", "a@b.com")
	assert.NoError(t, err)
}

func TestIssueReleasesThrottleWhenRequestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sender := &fakeMailer{err: context.Canceled, onSend: cancel}
	svc := newTwoFactor(&fakeCodeStore{}, sender, time.Now())

	_, err := svc.Issue(ctx, "u1", "a@b.com")
	require.Error(t, err)

	sender.err, sender.onSend = nil, nil
	_, err = svc.Issue(context.Background(), "u1", "a@b.com")
	assert.NoError(t, err)
}

func TestIssueValidatesInput(t *testing.T) {
	svc := newTwoFactor(&fakeCodeStore{}, &fakeMailer{}, time.Now())

	_, err := svc.Issue(context.Background(), "", "a@b.com")
	assert.True(t, apperr.Is(err, apperr.ClientInput))
	_, err = svc.Issue(context.Background(), "u1", "not-an-email")
	assert.True(t, apperr.Is(err, apperr.ClientInput))
	_, err = svc.Issue(context.Background(), "u1", "")
	assert.True(t, apperr.Is(err, apperr.ClientInput))
}

func TestVerifyOutcomes(t *testing.T) {
	now := time.Date(2026, 1, 4, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		codes []*models.TwoFactorCode
		code  string
		want  apperr.Kind
	}{
		{
			name: "no code issued",
			code: "123456",
			want: apperr.NotFound,
		},
		{
			name:  "expired is reported before mismatch",
			codes: []*models.TwoFactorCode{{ID: "c1", UserID: "u1", Code: "123456", ExpiresAt: now.Add(-time.Second)}},
			code:  "000000",
			want:  apperr.Expired,
		},
		{
			name:  "expires exactly now",
			codes: []*models.TwoFactorCode{{ID: "c1", UserID: "u1", Code: "123456", ExpiresAt: now}},
			code:  "123456",
			want:  apperr.Expired,
		},
		{
			name:  "wrong code",
			codes: []*models.TwoFactorCode{{ID: "c1", UserID: "u1", Code: "123456", ExpiresAt: now.Add(time.Minute)}},
			code:  "654321",
			want:  apperr.ClientInput,
		},
		{
			name:  "already verified",
			codes: []*models.TwoFactorCode{{ID: "c1", UserID: "u1", Code: "123456", ExpiresAt: now.Add(time.Minute), Verified: true}},
			code:  "123456",
			want:  apperr.Conflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTwoFactor(&fakeCodeStore{codes: tt.codes}, &fakeMailer{}, now)
			err := svc.Verify(context.Background(), "u1", tt.code)
			require.Error(t, err)
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
}

func TestVerifyWrongCodeIsInvalidCode(t *testing.T) {
	now := time.Now()
	codes := &fakeCodeStore{codes: []*models.TwoFactorCode{{ID: "c1", UserID: "u1", Code: "123456", ExpiresAt: now.Add(time.Minute)}}}
	svc := newTwoFactor(codes, &fakeMailer{}, now)

	assert.ErrorIs(t, svc.Verify(context.Background(), "u1", "999999"), ErrInvalidCode)
}

func TestVerifySucceedsOnce(t *testing.T) {
	now := time.Now()
	codes := &fakeCodeStore{codes: []*models.TwoFactorCode{{ID: "c1", UserID: "u1", Code: "123456", ExpiresAt: now.Add(time.Minute)}}}
	svc := newTwoFactor(codes, &fakeMailer{}, now)

	require.NoError(t, svc.Verify(context.Background(), "u1", " 123456 "))
	assert.True(t, codes.codes[0].Verified)

	err := svc.Verify(context.Background(), "u1", "123456")
	assert.True(t, apperr.Is(err, apperr.Conflict))
}

func TestVerifyLosesRaceToConcurrentVerify(t *testing.T) {
	now := time.Now()
	lost := false
	codes := &fakeCodeStore{
		codes:      []*models.TwoFactorCode{{ID: "c1", UserID: "u1", Code: "123456", ExpiresAt: now.Add(time.Minute)}},
		markResult: &lost,
	}
	svc := newTwoFactor(codes, &fakeMailer{}, now)

	err := svc.Verify(context.Background(), "u1", "123456")
	assert.True(t, apperr.Is(err, apperr.Conflict))
}
