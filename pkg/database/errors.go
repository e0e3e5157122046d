package database

import (
	stderrors "errors"
	"strings"

	"github.com/lib/pq"

	"github.com/gestipharm/gestipharm-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// Serialization failure (40001) / deadlock detected (40P01):
	// the transaction raced another writer and can be retried.
	case "40001", "40P01":
		return errors.ConcurrencyConflict()

	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// IsRetryable reports whether the error is a serialization conflict that the
// ledger may retry inside its bounded retry loop.
func IsRetryable(err error) bool {
	mapped := MapPQError(err)
	if mapped == nil {
		return errors.Is(err, errors.ErrConcurrencyConflict)
	}
	return errors.Is(mapped.Err, errors.ErrConcurrencyConflict)
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_range"):
		return errors.Validation(map[string]string{
			"quantity": "must be between 0 and the lot's initial quantity",
		})

	case strings.Contains(constraint, "initial_quantity_positive"):
		return errors.Validation(map[string]string{
			"initial_quantity": "must be greater than 0",
		})

	case strings.Contains(constraint, "status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: in_stock, exhausted, expired, withdrawn",
		})

	case strings.Contains(constraint, "movement_type_valid"):
		return errors.Validation(map[string]string{
			"movement_type": "must be one of: entree, sortie, ajustement",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "lot_number"):
		return "a lot with this lot number already exists for this product"
	case strings.Contains(constraint, "open_alert"):
		return "an open alert already exists for this product and type"
	case strings.Contains(constraint, "barcode"):
		return "a product with this barcode already exists"
	default:
		return "a record with these values already exists"
	}
}
