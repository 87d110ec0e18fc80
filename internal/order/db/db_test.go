package db_test

import (
	"context"
	"testing"
	"time"

	"ms-registration/internal/database/testdb"
	"ms-registration/internal/models"
	"ms-registration/internal/order"
	"ms-registration/internal/order/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *db.DB {
	return db.New(testdb.New(t))
}

func pendingOrder(purchaser string) *models.Order {
	return &models.Order{
		PurchaserID: purchaser,
		BillingName: "Alice Apple",
		BillingAddr: "1 Main Street\nCardiff",
		Status:      models.OrderStatusPending,
		UnconfirmedDetails: &models.UnconfirmedDetails{
			Rate:        "individual",
			DaysForSelf: []string{"sat", "sun"},
			EmailAddrsAndDaysForOthers: []models.OtherTicketRequest{
				{EmailAddr: "bob@example.com", Name: "Bob", Days: []string{"mon"}},
			},
		},
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	ctx := context.Background()
	orderDB := setupTestDB(t)

	o := pendingOrder("alice")
	require.NoError(t, orderDB.CreateOrder(ctx, o))
	assert.NotZero(t, o.ID)

	got, err := orderDB.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	assert.Nil(t, got.InvoiceNumber)
	require.NotNil(t, got.UnconfirmedDetails)
	assert.Equal(t, []string{"sat", "sun"}, got.UnconfirmedDetails.DaysForSelf)
	assert.Equal(t, "bob@example.com", got.UnconfirmedDetails.EmailAddrsAndDaysForOthers[0].EmailAddr)

	locked, err := orderDB.LockOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, locked.ID)

	_, err = orderDB.GetOrderByID(ctx, o.ID+1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateOrderColumns(t *testing.T) {
	ctx := context.Background()
	orderDB := setupTestDB(t)

	o := pendingOrder("alice")
	require.NoError(t, orderDB.CreateOrder(ctx, o))

	n := 7
	o.Status = models.OrderStatusSuccessful
	o.InvoiceNumber = &n
	o.UnconfirmedDetails = nil
	o.BillingName = "not written"
	require.NoError(t, orderDB.UpdateOrder(ctx, o, "status", "invoice_number", "unconfirmed_details"))

	got, err := orderDB.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusSuccessful, got.Status)
	require.NotNil(t, got.InvoiceNumber)
	assert.Equal(t, 7, *got.InvoiceNumber)
	assert.Nil(t, got.UnconfirmedDetails)
	assert.Equal(t, "Alice Apple", got.BillingName)
}

func TestNextInvoiceNumber(t *testing.T) {
	ctx := context.Background()
	orderDB := setupTestDB(t)

	n, err := orderDB.NextInvoiceNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, inv := range []int{1, 2, 5} {
		inv := inv
		o := pendingOrder("user")
		o.Status = models.OrderStatusSuccessful
		o.InvoiceNumber = &inv
		require.NoError(t, orderDB.CreateOrder(ctx, o))
	}
	// Orders without an invoice number do not count.
	require.NoError(t, orderDB.CreateOrder(ctx, pendingOrder("someone")))

	n, err = orderDB.NextInvoiceNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestInvoiceNumberIsUnique(t *testing.T) {
	ctx := context.Background()
	orderDB := setupTestDB(t)

	one := 1
	a := pendingOrder("alice")
	a.Status, a.InvoiceNumber = models.OrderStatusSuccessful, &one
	require.NoError(t, orderDB.CreateOrder(ctx, a))

	b := pendingOrder("bob")
	require.NoError(t, orderDB.CreateOrder(ctx, b))
	b.Status, b.InvoiceNumber = models.OrderStatusSuccessful, &one
	err := orderDB.UpdateOrder(ctx, b, "status", "invoice_number")
	assert.ErrorIs(t, err, models.ErrUniqueViolation)

	// Any number of orders may have no invoice number.
	require.NoError(t, orderDB.CreateOrder(ctx, pendingOrder("carol")))
	require.NoError(t, orderDB.CreateOrder(ctx, pendingOrder("dave")))
}

func TestOrderRowsAndRefunds(t *testing.T) {
	ctx := context.Background()
	orderDB := setupTestDB(t)

	o := pendingOrder("alice")
	require.NoError(t, orderDB.CreateOrder(ctx, o))

	ticket := &models.Ticket{Rate: "individual", Sat: true}
	require.NoError(t, orderDB.CreateTicket(ctx, ticket))

	row := &models.OrderRow{OrderID: o.ID, CostExclVAT: 6500, ItemDescr: "1-day individual-rate ticket", ItemDescrExtra: "Saturday"}
	row.SetItem(models.TicketItem{TicketID: ticket.ID})
	require.NoError(t, orderDB.InsertOrderRow(ctx, row))

	// A ticket is sold by at most one row.
	dup := &models.OrderRow{OrderID: o.ID, CostExclVAT: 6500, ItemDescr: "dup"}
	dup.SetItem(models.TicketItem{TicketID: ticket.ID})
	assert.ErrorIs(t, orderDB.InsertOrderRow(ctx, dup), models.ErrUniqueViolation)

	byTicket, err := orderDB.GetOrderRowByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, row.ID, byTicket.ID)
	assert.Equal(t, models.TicketItem{TicketID: ticket.ID}, byTicket.Item())

	count, err := orderDB.CountRefunds(ctx, o.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	refund := &models.Refund{OrderID: o.ID, Reason: "cannot attend", CreditNoteNumber: 1, GatewayRefundID: "re_1"}
	require.NoError(t, orderDB.InsertRefund(ctx, refund))
	clash := &models.Refund{OrderID: o.ID, Reason: "again", CreditNoteNumber: 1}
	assert.ErrorIs(t, orderDB.InsertRefund(ctx, clash), models.ErrUniqueViolation)

	now := time.Now().UTC()
	byTicket.RefundID = &refund.ID
	byTicket.RefundedAt = &now
	byTicket.SetItem(nil)
	require.NoError(t, orderDB.DetachOrderRow(ctx, byTicket))

	rows, err := orderDB.GetOrderRows(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Item())
	assert.True(t, rows[0].IsRefunded())
	_, err = orderDB.GetOrderRowByTicket(ctx, ticket.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	refunds, err := orderDB.GetRefunds(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, "re_1", refunds[0].GatewayRefundID)
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	orderDB := setupTestDB(t)

	o := pendingOrder("alice")
	err := orderDB.InTx(ctx, func(ctx context.Context, tx order.Queries) error {
		require.NoError(t, tx.CreateOrder(ctx, o))
		require.NoError(t, tx.CreateTicket(ctx, &models.Ticket{Rate: "individual", Sat: true}))
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	orders, err := orderDB.ListOrdersByPurchaser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, orders)
}
