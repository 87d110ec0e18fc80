package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Refund is a credit note against one order. Credit note numbers count up
// from 1 within each order.
type Refund struct {
	bun.BaseModel `bun:"table:refunds,alias:rf"`

	ID                int64      `bun:"id,pk,autoincrement" json:"-"`
	OrderID           int64      `bun:"order_id,notnull,unique:refunds_order_credit_note" json:"-"`
	Reason            string     `bun:"reason,notnull" json:"reason"`
	CreditNoteNumber  int        `bun:"credit_note_number,notnull,unique:refunds_order_credit_note" json:"credit_note_number"`
	GatewayRefundID   string     `bun:"gateway_refund_id" json:"gateway_refund_id"`
	GatewayRefundTime *time.Time `bun:"gateway_refund_time" json:"gateway_refund_time,omitempty"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// FullCreditNoteNumber renders PREFIX-0001-01 from the order's invoice number.
func (r *Refund) FullCreditNoteNumber(prefix string, invoiceNumber int) string {
	return fmt.Sprintf("%s-%04d-%02d", prefix, invoiceNumber, r.CreditNoteNumber)
}
