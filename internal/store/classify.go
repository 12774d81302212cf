package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"storefront/internal/apperr"

	"github.com/lib/pq"
)

// SQLSTATE values the store reacts to
const (
	codeInsufficientPrivilege = pq.ErrorCode("42501")
	codeUniqueViolation       = pq.ErrorCode("23505")
)

// permissionMarkers are matched only when an error carries no SQLSTATE, e.g. a
// message relayed from a data API. The code check above them is authoritative.
var permissionMarkers = []string{
	"permission denied",
	"row-level security",
	"row level security",
}

// ClassifyError maps a database error onto the apperr taxonomy. Errors that are
// already classified pass through unchanged.
func ClassifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.Transient, op, "", err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.NotFound, op, "not found", err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &apperr.Error{Kind: kindForCode(pqErr.Code), Op: op, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.Transient, op, "", err)
	}

	if IsPermissionDenied(err.Error()) {
		return apperr.Wrap(apperr.Authorization, op, "", err)
	}

	return apperr.Wrap(apperr.Unknown, op, "", err)
}

// UnmatchedUpdateError describes an UPDATE that touched no row. When the row
// exists, a policy filtered it out and the write counts as denied.
func UnmatchedUpdateError(op, table string, rowExists bool) error {
	if rowExists {
		return apperr.New(apperr.Authorization, op,
			fmt.Sprintf("permission denied: row-level security hid the %s row from update", table))
	}
	return apperr.New(apperr.NotFound, op, table+" row not found")
}

func kindForCode(code pq.ErrorCode) apperr.Kind {
	if code == codeInsufficientPrivilege {
		return apperr.Authorization
	}
	if code == codeUniqueViolation {
		return apperr.Conflict
	}

	switch code.Class() {
	case "22", "23":
		return apperr.ClientInput
	case "08", "40", "53", "57":
		return apperr.Transient
	}
	return apperr.Unknown
}

// IsPermissionDenied is the message heuristic for access-control rejections
func IsPermissionDenied(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
