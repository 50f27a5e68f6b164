package database

import (
	stderrors "errors"
	"strings"

	"github.com/lib/pq"
	"github.com/medflow/medflow-clinic/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError. Returns nil when err
// is not a pq.Error or the code has no friendly mapping.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case "23514": // check_violation
		return mapCheckConstraint(pqErr)

	case "23505": // unique_violation
		return errors.Conflict(formatUniqueMessage(pqErr))

	case "23503": // foreign_key_violation
		return errors.BadRequest("referenced record does not exist")

	case "23502": // not_null_violation
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	case "40001", "40P01": // serialization_failure, deadlock_detected
		return errors.Conflict("concurrent update, please retry")

	default:
		return nil
	}
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "amount_paid_within_total"):
		return errors.Validation(map[string]string{
			"amount_paid": "must not exceed the payment total",
		})
	case strings.Contains(constraint, "amount_due_balanced"):
		return errors.Validation(map[string]string{
			"amount_due": "must equal total_amount - amount_paid",
		})
	case strings.Contains(constraint, "quantity_on_hand_non_negative"):
		return errors.Conflict("insufficient stock")
	case strings.Contains(constraint, "status_valid"):
		return errors.Validation(map[string]string{
			"status": "is not a recognised status",
		})
	case strings.Contains(constraint, "non_negative"):
		return errors.Validation(map[string]string{
			"amount": "must not be negative",
		})
	case strings.Contains(constraint, "method_valid"):
		return errors.Validation(map[string]string{
			"method": "must be one of: cash, card, mobile_money, insurance, bank_transfer",
		})
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatUniqueMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "national_id"):
		return "a patient with this national ID already exists"
	case strings.Contains(constraint, "visit_number"):
		return "visit number already issued, please retry"
	case strings.Contains(constraint, "sku"):
		return "an inventory item with this SKU already exists"
	default:
		return "a record with these values already exists"
	}
}

// Translate returns the mapped AppError for a Postgres error, or err unchanged.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	if appErr := MapPQError(err); appErr != nil {
		return appErr
	}
	return err
}
