// Package payment talks to the card payment gateway.
package payment

import (
	"context"
	"fmt"
	"time"
)

// Gateway creates charges and refunds. Implementations must not retry on
// their own: a repeated charge is only safe with the same idempotency key.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	CreateRefund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

type ChargeRequest struct {
	AmountMinor         int64
	Currency            string
	Description         string
	StatementDescriptor string
	Token               string
	IdempotencyKey      string
	Metadata            map[string]string
}

type ChargeResult struct {
	ID        string
	CreatedAt time.Time
}

// RefundRequest refunds AmountMinor of a charge, or all of it when
// AmountMinor is nil.
type RefundRequest struct {
	ChargeID       string
	AmountMinor    *int64
	IdempotencyKey string
	Metadata       map[string]string
}

type RefundResult struct {
	ID        string
	CreatedAt time.Time
}

// CardError is a decline the purchaser can act on, eg by using another card.
type CardError struct {
	Reason string
	Code   string
}

func (e *CardError) Error() string {
	return fmt.Sprintf("card declined: %s", e.Reason)
}

// MaxStatementDescriptorLen is the gateway's limit on statement descriptors.
const MaxStatementDescriptorLen = 22

// TruncateStatementDescriptor trims s to the gateway's limit.
func TruncateStatementDescriptor(s string) string {
	if len(s) > MaxStatementDescriptorLen {
		return s[:MaxStatementDescriptorLen]
	}
	return s
}
