package db

import (
	"context"
	stdErrors "errors"
	"strings"

	pkgerrors "github.com/mercadito-app/mercadito-backend/pkg/errors"
	"gorm.io/gorm"
)

// IsUniqueViolation reports whether the provided error references a unique
// violation constraint. When constraintName is provided, the helper looks for
// the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// IsSerializationFailure reports whether the error signals a lost concurrency
// race the caller may retry (Postgres 40001/40P01, SQLite busy locks).
func IsSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 40001") ||
		strings.Contains(msg, "SQLSTATE 40P01") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// IsNotFound reports whether the error is GORM's empty-result sentinel.
func IsNotFound(err error) bool {
	return stdErrors.Is(err, gorm.ErrRecordNotFound)
}

// MapStorageError classifies a raw store error into the ledger taxonomy.
// Serialization failures and lost unique-insert races become retryable
// conflicts; context expiry becomes resource unavailability; everything else
// surfaces as an opaque storage failure carrying the operation for log
// context.
func MapStorageError(err error, op string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if IsSerializationFailure(err) || IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, op)
	}
	if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeResourceUnavailable, err, op)
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, op)
}
