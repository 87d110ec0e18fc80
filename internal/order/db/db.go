package db

import (
	"context"
	"database/sql"
	"time"

	"ms-registration/internal/database"
	"ms-registration/internal/models"
	"ms-registration/internal/order"
	ticketdb "ms-registration/internal/tickets/db"

	"github.com/uptrace/bun"
)

// DB holds order, row and refund queries on top of the ticket queries. Bun
// is either the database or an open transaction.
type DB struct {
	Bun bun.IDB
	*ticketdb.DB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb, DB: &ticketdb.DB{Bun: idb}}
}

// InTx runs fn with a DB bound to a new transaction.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Queries) error) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, New(tx))
	})
}

// ---------------- ORDERS ----------------

// CreateOrder → insert new order
func (d *DB) CreateOrder(ctx context.Context, o *models.Order) error {
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	_, err := d.Bun.NewInsert().Model(o).Returning("id").Exec(ctx)
	return database.MapError(err)
}

// GetOrderByID → fetch one order by its ID
func (d *DB) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	err := d.Bun.NewSelect().
		Model(&o).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &o, nil
}

// LockOrder reads an order for update. Postgres takes a row lock; SQLite
// already serialises writers.
func (d *DB) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	q := d.Bun.NewSelect().
		Model(&o).
		Where("id = ?", id)
	if database.IsPostgres(d.Bun) {
		q = q.For("UPDATE")
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, database.MapError(err)
	}
	return &o, nil
}

// UpdateOrder writes the named columns, or every column when none are given.
func (d *DB) UpdateOrder(ctx context.Context, o *models.Order, columns ...string) error {
	q := d.Bun.NewUpdate().Model(o).WherePK()
	if len(columns) > 0 {
		q = q.Column(columns...)
	} else {
		q = q.ExcludeColumn("id", "created_at")
	}
	_, err := q.Exec(ctx)
	return database.MapError(err)
}

func (d *DB) ListOrdersByPurchaser(ctx context.Context, purchaserID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("purchaser_id = ?", purchaserID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, database.MapError(err)
	}
	return orders, nil
}

// NextInvoiceNumber is one more than the highest invoice number issued. It
// is only safe because orders.invoice_number is unique: two confirmations
// reading the same maximum cannot both commit.
func (d *DB) NextInvoiceNumber(ctx context.Context) (int, error) {
	var max sql.NullInt64
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("MAX(invoice_number)").
		Scan(ctx, &max)
	if err != nil {
		return 0, database.MapError(err)
	}
	return int(max.Int64) + 1, nil
}

// ---------------- ORDER ROWS ----------------

func (d *DB) InsertOrderRow(ctx context.Context, row *models.OrderRow) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().Model(row).Returning("id").Exec(ctx)
	return database.MapError(err)
}

func (d *DB) GetOrderRows(ctx context.Context, orderID int64) ([]models.OrderRow, error) {
	var rows []models.OrderRow
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, database.MapError(err)
	}
	return rows, nil
}

func (d *DB) GetOrderRow(ctx context.Context, id int64) (*models.OrderRow, error) {
	var row models.OrderRow
	err := d.Bun.NewSelect().Model(&row).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &row, nil
}

func (d *DB) GetOrderRowByTicket(ctx context.Context, ticketID int64) (*models.OrderRow, error) {
	var row models.OrderRow
	err := d.Bun.NewSelect().Model(&row).Where("ticket_id = ?", ticketID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &row, nil
}

// DetachOrderRow stores a refunded row: its item is gone and it points at
// the refund instead.
func (d *DB) DetachOrderRow(ctx context.Context, row *models.OrderRow) error {
	_, err := d.Bun.NewUpdate().
		Model(row).
		Column("item_kind", "ticket_id", "refund_id", "refunded_at").
		WherePK().
		Exec(ctx)
	return database.MapError(err)
}

// ---------------- REFUNDS ----------------

func (d *DB) CountRefunds(ctx context.Context, orderID int64) (int, error) {
	n, err := d.Bun.NewSelect().
		Model((*models.Refund)(nil)).
		Where("order_id = ?", orderID).
		Count(ctx)
	return n, database.MapError(err)
}

func (d *DB) InsertRefund(ctx context.Context, refund *models.Refund) error {
	if refund.CreatedAt.IsZero() {
		refund.CreatedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().Model(refund).Returning("id").Exec(ctx)
	return database.MapError(err)
}

func (d *DB) GetRefunds(ctx context.Context, orderID int64) ([]models.Refund, error) {
	var refunds []models.Refund
	err := d.Bun.NewSelect().
		Model(&refunds).
		Where("order_id = ?", orderID).
		Order("credit_note_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, database.MapError(err)
	}
	return refunds, nil
}
