// Package prices holds the ticket price list. All amounts are in pence.
package prices

import (
	"fmt"
	"sort"
)

// Rate is the VAT-exclusive price of a ticket at one rate: a fixed part plus
// a per-day part.
type Rate struct {
	TicketPrice int64
	DayPrice    int64
}

const (
	RateFree             = "free"
	RateIndividual       = "individual"
	RateCorporate        = "corporate"
	RateUnwaged          = "unwaged"
	RateEducatorEmployer = "educator-employer"
	RateEducatorSelf     = "educator-self"
)

var rates = map[string]Rate{
	RateFree:             {TicketPrice: 0, DayPrice: 0},
	RateIndividual:       {TicketPrice: 3500, DayPrice: 3000},
	RateCorporate:        {TicketPrice: 7500, DayPrice: 6000},
	RateUnwaged:          {TicketPrice: 2500, DayPrice: 1500},
	RateEducatorEmployer: {TicketPrice: 3500, DayPrice: 3000},
	RateEducatorSelf:     {TicketPrice: 2500, DayPrice: 1500},
}

// Known reports whether rate is on the price list.
func Known(rate string) bool {
	_, ok := rates[rate]
	return ok
}

// Purchasable reports whether rate can be bought through an order. Free
// tickets are only issued by staff.
func Purchasable(rate string) bool {
	return Known(rate) && rate != RateFree
}

// Rates returns the purchasable rates in name order.
func Rates() []string {
	out := make([]string, 0, len(rates))
	for name := range rates {
		if name != RateFree {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// CostExclVAT is ticket_price + day_price * numDays.
func CostExclVAT(rate string, numDays int) (int64, error) {
	r, ok := rates[rate]
	if !ok {
		return 0, fmt.Errorf("unknown rate %q", rate)
	}
	if numDays < 1 {
		return 0, fmt.Errorf("ticket needs at least one day, got %d", numDays)
	}
	return r.TicketPrice + r.DayPrice*int64(numDays), nil
}

// InclVAT adds VAT at 20%.
func InclVAT(exclVAT int64) int64 {
	return exclVAT * 6 / 5
}

// CostInclVAT is CostExclVAT with VAT added.
func CostInclVAT(rate string, numDays int) (int64, error) {
	cost, err := CostExclVAT(rate, numDays)
	if err != nil {
		return 0, err
	}
	return InclVAT(cost), nil
}
