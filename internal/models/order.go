package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-registration/internal/prices"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusSuccessful OrderStatus = "successful"
	OrderStatusErrored    OrderStatus = "errored"
)

// OtherTicketRequest is a ticket bought for someone else, who is sent an
// invitation to claim it.
type OtherTicketRequest struct {
	EmailAddr string   `json:"email_addr"`
	Name      string   `json:"name,omitempty"`
	Days      []string `json:"days"`
}

// UnconfirmedDetails is what the purchaser asked for. It lives on the order
// until confirmation turns it into rows, tickets and invitations.
type UnconfirmedDetails struct {
	Rate                       string               `json:"rate"`
	DaysForSelf                []string             `json:"days_for_self,omitempty"`
	EmailAddrsAndDaysForOthers []OtherTicketRequest `json:"email_addrs_and_days_for_others,omitempty"`
}

func (d UnconfirmedDetails) Validate() error {
	if !prices.Purchasable(d.Rate) {
		return fmt.Errorf("unknown rate %q", d.Rate)
	}
	if len(d.DaysForSelf) == 0 && len(d.EmailAddrsAndDaysForOthers) == 0 {
		return errors.New("order must contain at least one ticket")
	}
	if err := validateDays(d.DaysForSelf, true); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, other := range d.EmailAddrsAndDaysForOthers {
		addr := strings.ToLower(strings.TrimSpace(other.EmailAddr))
		if addr == "" || !strings.Contains(addr, "@") {
			return fmt.Errorf("invalid email address %q", other.EmailAddr)
		}
		if seen[addr] {
			return fmt.Errorf("email address %q appears twice", other.EmailAddr)
		}
		seen[addr] = true
		if err := validateDays(other.Days, false); err != nil {
			return fmt.Errorf("%s: %w", other.EmailAddr, err)
		}
	}
	return nil
}

func validateDays(days []string, allowEmpty bool) error {
	if len(days) == 0 && !allowEmpty {
		return errors.New("ticket needs at least one day")
	}
	seen := make(map[string]bool)
	for _, d := range days {
		if !ValidDay(d) {
			return fmt.Errorf("unknown day %q", d)
		}
		if seen[d] {
			return fmt.Errorf("day %q appears twice", d)
		}
		seen[d] = true
	}
	return nil
}

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID                 int64               `bun:"id,pk,autoincrement" json:"-"`
	PurchaserID        string              `bun:"purchaser_id,notnull" json:"purchaser_id"`
	BillingName        string              `bun:"billing_name" json:"billing_name"`
	BillingAddr        string              `bun:"billing_addr" json:"billing_addr"`
	Status             OrderStatus         `bun:"status,notnull" json:"status"`
	InvoiceNumber      *int                `bun:"invoice_number,unique" json:"invoice_number,omitempty"`
	GatewayChargeID    string              `bun:"gateway_charge_id" json:"gateway_charge_id,omitempty"`
	GatewayChargeTime  *time.Time          `bun:"gateway_charge_time" json:"gateway_charge_time,omitempty"`
	FailureReason      string              `bun:"failure_reason" json:"failure_reason,omitempty"`
	UnconfirmedDetails *UnconfirmedDetails `bun:"unconfirmed_details,type:jsonb" json:"unconfirmed_details,omitempty"`
	CreatedAt          time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt          time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// PaymentRequired is true while the order can still be charged.
func (o *Order) PaymentRequired() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusFailed
}

func (o *Order) IsSuccessful() bool {
	return o.Status == OrderStatusSuccessful
}

// FullInvoiceNumber renders the invoice number as PREFIX-0001, or "" when no
// number has been allocated.
func (o *Order) FullInvoiceNumber(prefix string) string {
	if o.InvoiceNumber == nil {
		return ""
	}
	return fmt.Sprintf("%s-%04d", prefix, *o.InvoiceNumber)
}

// BillingAddrFormatted collapses the multi-line billing address onto one line.
func (o *Order) BillingAddrFormatted() string {
	var parts []string
	for _, line := range strings.Split(o.BillingAddr, "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, ","))
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, ", ")
}

type ItemKind string

const (
	ItemKindNone   ItemKind = ""
	ItemKindTicket ItemKind = "ticket"
)

// Item is what an order row sells. The set of implementations is closed.
type Item interface {
	Kind() ItemKind
	isItem()
}

// TicketItem points an order row at a ticket.
type TicketItem struct {
	TicketID int64
}

func (TicketItem) Kind() ItemKind { return ItemKindTicket }
func (TicketItem) isItem()        {}

// OrderRow is one line of an order. Rows are written once at confirmation
// and only change when refunded, which detaches the item.
type OrderRow struct {
	bun.BaseModel `bun:"table:order_rows,alias:r"`

	ID             int64      `bun:"id,pk,autoincrement" json:"id"`
	OrderID        int64      `bun:"order_id,notnull" json:"-"`
	CostExclVAT    int64      `bun:"cost_excl_vat,notnull" json:"cost_excl_vat"`
	ItemKind       ItemKind   `bun:"item_kind" json:"item_kind,omitempty"`
	TicketID       *int64     `bun:"ticket_id,unique" json:"-"`
	ItemDescr      string     `bun:"item_descr,notnull" json:"item_descr"`
	ItemDescrExtra string     `bun:"item_descr_extra" json:"item_descr_extra,omitempty"`
	RefundID       *int64     `bun:"refund_id" json:"-"`
	RefundedAt     *time.Time `bun:"refunded_at" json:"refunded_at,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`

	// Ticket is the draft ticket when the row is an unsaved projection.
	Ticket *Ticket `bun:"-" json:"-"`
}

// Item returns the row's item, or nil once the row has been refunded.
func (r *OrderRow) Item() Item {
	switch r.ItemKind {
	case ItemKindTicket:
		if r.TicketID != nil {
			return TicketItem{TicketID: *r.TicketID}
		}
	}
	return nil
}

// SetItem attaches item to the row. A nil item detaches it.
func (r *OrderRow) SetItem(item Item) {
	switch it := item.(type) {
	case TicketItem:
		id := it.TicketID
		r.ItemKind = ItemKindTicket
		r.TicketID = &id
	case nil:
		r.ItemKind = ItemKindNone
		r.TicketID = nil
	}
}

func (r *OrderRow) CostInclVAT() int64 {
	return prices.InclVAT(r.CostExclVAT)
}

func (r *OrderRow) IsRefunded() bool {
	return r.RefundID != nil
}
