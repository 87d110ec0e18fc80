// Package analytics builds the staff reports on ticket sales and orders.
package analytics

import (
	"context"
	"sort"
	"time"

	"ms-registration/internal/models"
	"ms-registration/internal/prices"
	"ms-registration/internal/scrambler"
)

// Service handles analytics operations
type Service struct {
	db *DB
}

func NewService(db *DB) *Service {
	return &Service{db: db}
}

// ReportRates is the column order of the per-rate reports.
func ReportRates() []string {
	return append(prices.Rates(), prices.RateFree)
}

// TicketSummary covers every live ticket, paid or free.
type TicketSummary struct {
	Tickets      int           `json:"tickets"`
	Days         int           `json:"days"`
	CostExclVAT  int64         `json:"cost_excl_vat"`
	Unclaimed    int           `json:"unclaimed_invitations"`
	StatusCounts []StatusCount `json:"orders_by_status"`
}

func (s *Service) TicketSummary(ctx context.Context) (*TicketSummary, error) {
	tickets, err := s.db.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	summary := &TicketSummary{Tickets: len(tickets)}
	for i := range tickets {
		n := tickets[i].NumDays()
		summary.Days += n
		if cost, err := tickets[i].CostExclVAT(); err == nil {
			summary.CostExclVAT += cost
		}
	}
	if summary.Unclaimed, err = s.db.CountInvitations(ctx, models.InvitationUnclaimed); err != nil {
		return nil, err
	}
	if summary.StatusCounts, err = s.db.CountOrdersByStatus(ctx); err != nil {
		return nil, err
	}
	return summary, nil
}

// DayAttendance counts the tickets valid on one conference day.
type DayAttendance struct {
	Day    string         `json:"day"`
	ByRate map[string]int `json:"by_rate"`
	Total  int            `json:"total"`
}

func (s *Service) AttendanceByDay(ctx context.Context) ([]DayAttendance, error) {
	tickets, err := s.db.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DayAttendance, 0, len(models.DayKeys))
	for _, day := range models.DayKeys {
		row := DayAttendance{Day: models.DayName(day), ByRate: emptyByRate()}
		for i := range tickets {
			for _, k := range tickets[i].DayKeys() {
				if k == day {
					row.ByRate[tickets[i].Rate]++
					row.Total++
				}
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// SalesByLength counts tickets of one length and what they were sold for.
type SalesByLength struct {
	NumDays        int              `json:"num_days"`
	ByRate         map[string]int   `json:"by_rate"`
	RevenueInclVAT map[string]int64 `json:"revenue_incl_vat"`
	Total          int              `json:"total"`
	TotalRevenue   int64            `json:"total_revenue_incl_vat"`
}

func (s *Service) TicketSales(ctx context.Context) ([]SalesByLength, error) {
	tickets, err := s.db.ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SalesByLength, len(models.DayKeys))
	for i := range out {
		out[i] = SalesByLength{NumDays: i + 1, ByRate: emptyByRate(), RevenueInclVAT: make(map[string]int64)}
		for _, rate := range ReportRates() {
			out[i].RevenueInclVAT[rate] = 0
		}
	}
	for i := range tickets {
		n := tickets[i].NumDays()
		if n < 1 || n > len(out) {
			continue
		}
		row := &out[n-1]
		row.ByRate[tickets[i].Rate]++
		row.Total++
		if cost, err := prices.CostInclVAT(tickets[i].Rate, n); err == nil {
			row.RevenueInclVAT[tickets[i].Rate] += cost
			row.TotalRevenue += cost
		}
	}
	return out, nil
}

// DailySalesMetrics contains metrics for a single day
type DailySalesMetrics struct {
	Date           string `json:"date"`
	RevenueInclVAT int64  `json:"revenue_incl_vat"`
	TicketsSold    int    `json:"tickets_sold"`
}

// DailySales groups unrefunded sales by the day they were charged.
func (s *Service) DailySales(ctx context.Context) ([]DailySalesMetrics, error) {
	orders, err := s.db.ListOrders(ctx, "")
	if err != nil {
		return nil, err
	}
	chargedOn := make(map[int64]string)
	for i := range orders {
		if orders[i].IsSuccessful() && orders[i].GatewayChargeTime != nil {
			chargedOn[orders[i].ID] = orders[i].GatewayChargeTime.UTC().Format(time.DateOnly)
		}
	}

	rows, err := s.db.ListLiveRows(ctx)
	if err != nil {
		return nil, err
	}
	byDate := make(map[string]*DailySalesMetrics)
	for i := range rows {
		date, ok := chargedOn[rows[i].OrderID]
		if !ok {
			continue
		}
		m := byDate[date]
		if m == nil {
			m = &DailySalesMetrics{Date: date}
			byDate[date] = m
		}
		m.RevenueInclVAT += rows[i].CostInclVAT()
		m.TicketsSold++
	}

	out := make([]DailySalesMetrics, 0, len(byDate))
	for _, m := range byDate {
		out = append(out, *m)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Date < out[b].Date })
	return out, nil
}

// OrderLine is one order in the orders report.
type OrderLine struct {
	ID          string             `json:"id"`
	Rate        string             `json:"rate,omitempty"`
	PurchaserID string             `json:"purchaser_id"`
	BillingName string             `json:"billing_name"`
	Tickets     int                `json:"tickets"`
	CostInclVAT int64              `json:"cost_incl_vat"`
	Status      models.OrderStatus `json:"status"`
}

// Orders lists every order, or only those not yet paid for.
func (s *Service) Orders(ctx context.Context, unpaidOnly bool) ([]OrderLine, error) {
	var exclude models.OrderStatus
	if unpaidOnly {
		exclude = models.OrderStatusSuccessful
	}
	orders, err := s.db.ListOrders(ctx, exclude)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.ListLiveRows(ctx)
	if err != nil {
		return nil, err
	}
	paid := make(map[int64][]models.OrderRow)
	for i := range rows {
		paid[rows[i].OrderID] = append(paid[rows[i].OrderID], rows[i])
	}

	out := make([]OrderLine, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		line := OrderLine{
			ID:          scrambler.Orders.Forward(o.ID),
			PurchaserID: o.PurchaserID,
			BillingName: o.BillingName,
			Status:      o.Status,
		}
		if d := o.UnconfirmedDetails; d != nil {
			line.Rate = d.Rate
			if len(d.DaysForSelf) > 0 {
				line.Tickets++
				line.CostInclVAT += costOrZero(d.Rate, len(d.DaysForSelf))
			}
			for _, other := range d.EmailAddrsAndDaysForOthers {
				line.Tickets++
				line.CostInclVAT += costOrZero(d.Rate, len(other.Days))
			}
		} else {
			for _, row := range paid[o.ID] {
				line.Tickets++
				line.CostInclVAT += row.CostInclVAT()
			}
		}
		out = append(out, line)
	}
	return out, nil
}

func costOrZero(rate string, numDays int) int64 {
	cost, err := prices.CostInclVAT(rate, numDays)
	if err != nil {
		return 0
	}
	return cost
}

func emptyByRate() map[string]int {
	m := make(map[string]int)
	for _, rate := range ReportRates() {
		m[rate] = 0
	}
	return m
}
