package models

import "time"

// OrderEvent is the payload published on the order topics.
type OrderEvent struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"order_id"`
	PurchaserID   string    `json:"purchaser_id"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	CreditNote    string    `json:"credit_note,omitempty"`
	ChargeID      string    `json:"charge_id,omitempty"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
	TicketIDs     []string  `json:"ticket_ids,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

const (
	EventOrderConfirmed = "order.confirmed"
	EventOrderErrored   = "order.errored"
	EventOrderRefunded  = "order.refunded"
	EventOpsAlert       = "ops.alert"
)
