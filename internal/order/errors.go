package order

import (
	"errors"
	"fmt"

	"ms-registration/internal/models"
)

var (
	ErrInvalidState     = errors.New("order is not in a valid state for this operation")
	ErrChargeInProgress = errors.New("a payment for this order is already being processed")
	ErrInvalidOrder     = errors.New("invalid order details")
)

// InvalidStateError is returned when an operation's precondition on the
// order's status (or a row's item) does not hold. It matches ErrInvalidState.
type InvalidStateError struct {
	Op      string
	OrderID int64
	Status  models.OrderStatus
	Detail  string
}

func (e *InvalidStateError) Error() string {
	msg := fmt.Sprintf("%s: order %d is %s", e.Op, e.OrderID, e.Status)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// CommitConflictError means the charge succeeded but the confirmation could
// not be stored because of a uniqueness clash. The charge has to be given back.
type CommitConflictError struct {
	OrderID  int64
	ChargeID string
	Err      error
}

func (e *CommitConflictError) Error() string {
	return fmt.Sprintf("order %d: confirming charge %s conflicted: %v", e.OrderID, e.ChargeID, e.Err)
}

func (e *CommitConflictError) Unwrap() error { return e.Err }

// RefundGatewayError means money we owe back could not be returned through
// the gateway. Every occurrence is escalated to an operator.
type RefundGatewayError struct {
	OrderID     int64
	ChargeID    string
	AmountMinor int64
	Err         error
}

func (e *RefundGatewayError) Error() string {
	return fmt.Sprintf("order %d: refunding %d from charge %s failed: %v", e.OrderID, e.AmountMinor, e.ChargeID, e.Err)
}

func (e *RefundGatewayError) Unwrap() error { return e.Err }
