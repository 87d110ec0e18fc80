package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentRequired(t *testing.T) {
	cases := map[OrderStatus]bool{
		OrderStatusPending:    true,
		OrderStatusFailed:     true,
		OrderStatusSuccessful: false,
		OrderStatusErrored:    false,
	}
	for status, want := range cases {
		o := &Order{Status: status}
		assert.Equal(t, want, o.PaymentRequired(), string(status))
	}
}

func TestFullInvoiceNumber(t *testing.T) {
	o := &Order{}
	assert.Equal(t, "", o.FullInvoiceNumber("S-2018"))

	n := 7
	o.InvoiceNumber = &n
	assert.Equal(t, "S-2018-0007", o.FullInvoiceNumber("S-2018"))

	r := &Refund{CreditNoteNumber: 2}
	assert.Equal(t, "R-2018-0007-02", r.FullCreditNoteNumber("R-2018", n))
}

func TestBillingAddrFormatted(t *testing.T) {
	o := &Order{BillingAddr: "123 Main St,\nCardiff\n\nCF10 1AA\n"}
	assert.Equal(t, "123 Main St, Cardiff, CF10 1AA", o.BillingAddrFormatted())
}

func TestOrderRowItem(t *testing.T) {
	row := &OrderRow{CostExclVAT: 12500}
	assert.Nil(t, row.Item())

	row.SetItem(TicketItem{TicketID: 9})
	assert.Equal(t, ItemKindTicket, row.ItemKind)
	assert.Equal(t, TicketItem{TicketID: 9}, row.Item())
	assert.Equal(t, int64(15000), row.CostInclVAT())

	row.SetItem(nil)
	assert.Nil(t, row.Item())
	assert.Nil(t, row.TicketID)
	assert.Equal(t, ItemKindNone, row.ItemKind)
}

func TestUnconfirmedDetailsValidate(t *testing.T) {
	valid := UnconfirmedDetails{
		Rate:        "individual",
		DaysForSelf: []string{"sat", "sun"},
		EmailAddrsAndDaysForOthers: []OtherTicketRequest{
			{EmailAddr: "bob@example.com", Days: []string{"sun", "mon"}},
		},
	}
	assert.NoError(t, valid.Validate())

	tests := map[string]UnconfirmedDetails{
		"free rate":      {Rate: "free", DaysForSelf: []string{"sat"}},
		"unknown rate":   {Rate: "student", DaysForSelf: []string{"sat"}},
		"empty":          {Rate: "individual"},
		"unknown day":    {Rate: "individual", DaysForSelf: []string{"fri"}},
		"duplicate day":  {Rate: "individual", DaysForSelf: []string{"sat", "sat"}},
		"no other days":  {Rate: "individual", EmailAddrsAndDaysForOthers: []OtherTicketRequest{{EmailAddr: "bob@example.com"}}},
		"bad email":      {Rate: "individual", EmailAddrsAndDaysForOthers: []OtherTicketRequest{{EmailAddr: "bob", Days: []string{"sat"}}}},
		"repeated email": {Rate: "individual", EmailAddrsAndDaysForOthers: []OtherTicketRequest{{EmailAddr: "bob@example.com", Days: []string{"sat"}}, {EmailAddr: "BOB@example.com", Days: []string{"sun"}}}},
	}
	for name, details := range tests {
		assert.Error(t, details.Validate(), name)
	}
}

func TestTicketDays(t *testing.T) {
	ticket := &Ticket{Rate: "individual"}
	ticket.SetDays([]string{"mon", "sat", "sun", "fri"})

	assert.Equal(t, []string{"sat", "sun", "mon"}, ticket.DayKeys())
	assert.Equal(t, "Saturday, Sunday, Monday", ticket.DaysSentence())
	assert.Equal(t, "3-day individual-rate ticket", ticket.DescrForOrder())

	cost, err := ticket.CostExclVAT()
	assert.NoError(t, err)
	assert.Equal(t, int64(12500), cost)

	ticket.SetDays([]string{"wed"})
	assert.Equal(t, []string{"wed"}, ticket.DayKeys())
	assert.False(t, ticket.IsFree())
}
