package order

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ms-registration/internal/models"
)

// RowSummary groups identical order rows.
type RowSummary struct {
	ItemDescr          string `json:"item_descr"`
	Quantity           int    `json:"quantity"`
	PerItemCostExclVAT int64  `json:"per_item_cost_excl_vat"`
	PerItemCostInclVAT int64  `json:"per_item_cost_incl_vat"`
	TotalCostExclVAT   int64  `json:"total_cost_excl_vat"`
	TotalCostInclVAT   int64  `json:"total_cost_incl_vat"`
}

// OrderRowsSummary counts rows with the same description and cost, most
// expensive group first.
func OrderRowsSummary(rows []models.OrderRow) []RowSummary {
	type key struct {
		descr string
		cost  int64
	}
	index := make(map[key]int)
	var out []RowSummary
	for i := range rows {
		k := key{rows[i].ItemDescr, rows[i].CostExclVAT}
		j, ok := index[k]
		if !ok {
			j = len(out)
			index[k] = j
			out = append(out, RowSummary{
				ItemDescr:          rows[i].ItemDescr,
				PerItemCostExclVAT: rows[i].CostExclVAT,
				PerItemCostInclVAT: rows[i].CostInclVAT(),
			})
		}
		out[j].Quantity++
		out[j].TotalCostExclVAT += rows[i].CostExclVAT
		out[j].TotalCostInclVAT += rows[i].CostInclVAT()
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].TotalCostExclVAT > out[b].TotalCostExclVAT
	})
	return out
}

// BriefSummary renders rows like "2 × 3-day individual-rate ticket".
func BriefSummary(rows []models.OrderRow) string {
	summary := OrderRowsSummary(rows)
	parts := make([]string, 0, len(summary))
	for _, r := range summary {
		parts = append(parts, fmt.Sprintf("%d × %s", r.Quantity, r.ItemDescr))
	}
	return strings.Join(parts, ", ")
}

type CreditNote struct {
	Number    string    `json:"number"`
	Reason    string    `json:"reason"`
	GatewayID string    `json:"gateway_refund_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Receipt is everything needed to show an order to its purchaser.
type Receipt struct {
	OrderID       string                     `json:"order_id"`
	Status        models.OrderStatus         `json:"status"`
	InvoiceNumber string                     `json:"invoice_number,omitempty"`
	BillingName   string                     `json:"billing_name"`
	BillingAddr   string                     `json:"billing_addr"`
	Rows          []models.OrderRow          `json:"rows"`
	Summary       []RowSummary               `json:"summary"`
	Brief         string                     `json:"brief"`
	TotalExclVAT  int64                      `json:"total_excl_vat"`
	TotalInclVAT  int64                      `json:"total_incl_vat"`
	VAT           int64                      `json:"vat"`
	FailureReason string                     `json:"failure_reason,omitempty"`
	CreditNotes   []CreditNote               `json:"credit_notes,omitempty"`
	Details       *models.UnconfirmedDetails `json:"unconfirmed_details,omitempty"`
}

// Receipt builds the receipt for an order. Orders still awaiting payment show
// what would be charged.
func (s *OrderService) Receipt(ctx context.Context, order *models.Order) (*Receipt, error) {
	rows, err := s.GetOrderRows(ctx, order)
	if err != nil {
		return nil, err
	}

	r := &Receipt{
		OrderID:       orderRef(order.ID),
		Status:        order.Status,
		InvoiceNumber: order.FullInvoiceNumber(s.cfg.InvoicePrefix),
		BillingName:   order.BillingName,
		BillingAddr:   order.BillingAddrFormatted(),
		Rows:          rows,
		Summary:       OrderRowsSummary(rows),
		Brief:         BriefSummary(rows),
		FailureReason: order.FailureReason,
		Details:       order.UnconfirmedDetails,
	}
	for i := range rows {
		r.TotalExclVAT += rows[i].CostExclVAT
		r.TotalInclVAT += rows[i].CostInclVAT()
	}
	r.VAT = r.TotalInclVAT - r.TotalExclVAT

	if order.IsSuccessful() {
		refunds, err := s.DB.GetRefunds(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		for i := range refunds {
			r.CreditNotes = append(r.CreditNotes, CreditNote{
				Number:    refunds[i].FullCreditNoteNumber(s.cfg.CreditNotePrefix, derefInt(order.InvoiceNumber)),
				Reason:    refunds[i].Reason,
				GatewayID: refunds[i].GatewayRefundID,
				CreatedAt: refunds[i].CreatedAt,
			})
		}
	}
	return r, nil
}
