package store

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/models"
)

// CreateTwoFactorCode stores an issued code; ID and CreatedAt are filled in
func (s *Store) CreateTwoFactorCode(ctx context.Context, code *models.TwoFactorCode) error {
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO user_2fa_codes (user_id, code, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		code.UserID, code.Code, code.ExpiresAt,
	).Scan(&code.ID, &code.CreatedAt)
	return ClassifyError("Store.CreateTwoFactorCode", err)
}

// LatestTwoFactorCode returns the most recently issued code for a user, or nil
func (s *Store) LatestTwoFactorCode(ctx context.Context, userID string) (*models.TwoFactorCode, error) {
	var code models.TwoFactorCode
	err := s.db.GetContext(ctx, &code,
		`SELECT id, user_id, code, expires_at, verified, created_at
		FROM user_2fa_codes
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, ClassifyError("Store.LatestTwoFactorCode", err)
	}
	return &code, nil
}

// MarkTwoFactorVerified flips verified exactly once. It reports false when the
// code was already verified by a concurrent request.
func (s *Store) MarkTwoFactorVerified(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE user_2fa_codes SET verified = TRUE WHERE id = $1 AND verified = FALSE", id)
	if err != nil {
		return false, ClassifyError("Store.MarkTwoFactorVerified", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, ClassifyError("Store.MarkTwoFactorVerified", err)
	}
	return n == 1, nil
}
