package analytics

import (
	"context"

	"ms-registration/internal/database"
	"ms-registration/internal/models"

	"github.com/uptrace/bun"
)

// DB handles report queries
type DB struct {
	bun bun.IDB
}

func NewDB(db bun.IDB) *DB {
	return &DB{bun: db}
}

func (db *DB) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := db.bun.NewSelect().
		Model(&tickets).
		Order("id ASC").
		Scan(ctx)
	return tickets, database.MapError(err)
}

// ListOrders returns orders in creation order, optionally excluding one status.
func (db *DB) ListOrders(ctx context.Context, exclude models.OrderStatus) ([]models.Order, error) {
	var orders []models.Order
	q := db.bun.NewSelect().Model(&orders)
	if exclude != "" {
		q = q.Where("status != ?", exclude)
	}
	err := q.Order("id ASC").Scan(ctx)
	return orders, database.MapError(err)
}

// ListLiveRows returns the unrefunded rows of successful orders.
func (db *DB) ListLiveRows(ctx context.Context) ([]models.OrderRow, error) {
	paid := db.bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("id").
		Where("status = ?", models.OrderStatusSuccessful)

	var rows []models.OrderRow
	err := db.bun.NewSelect().
		Model(&rows).
		Where("order_id IN (?)", paid).
		Where("refund_id IS NULL").
		Order("id ASC").
		Scan(ctx)
	return rows, database.MapError(err)
}

// StatusCount is the number of orders in one status.
type StatusCount struct {
	Status models.OrderStatus `bun:"status" json:"status"`
	Count  int                `bun:"count" json:"count"`
}

func (db *DB) CountOrdersByStatus(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := db.bun.NewSelect().
		Model((*models.Order)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		GroupExpr("status").
		OrderExpr("status").
		Scan(ctx, &counts)
	return counts, database.MapError(err)
}

func (db *DB) CountInvitations(ctx context.Context, status models.InvitationStatus) (int, error) {
	n, err := db.bun.NewSelect().
		Model((*models.TicketInvitation)(nil)).
		Where("status = ?", status).
		Count(ctx)
	return n, database.MapError(err)
}
