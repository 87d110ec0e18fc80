package db

import (
	"context"
	"time"

	"ms-registration/internal/database"
	"ms-registration/internal/models"
	outboxdb "ms-registration/internal/outbox/db"
	tickets "ms-registration/internal/tickets/service"

	"github.com/uptrace/bun"
)

// DB holds ticket and invitation queries. Bun is either the database or an
// open transaction.
type DB struct {
	Bun bun.IDB
}

// InTx runs fn with a DB bound to a new transaction.
func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx tickets.TxStore) error) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &DB{Bun: tx})
	})
}

// ---------------- TICKETS ----------------

func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	now := time.Now().UTC()
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	_, err := d.Bun.NewInsert().Model(ticket).Returning("id").Exec(ctx)
	return database.MapError(err)
}

func (d *DB) GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &ticket, nil
}

func (d *DB) GetTicketByOwner(ctx context.Context, ownerID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("owner_id = ?", ownerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &ticket, nil
}

func (d *DB) UpdateTicketDays(ctx context.Context, ticket *models.Ticket) error {
	ticket.UpdatedAt = time.Now().UTC()
	_, err := d.Bun.NewUpdate().
		Model(ticket).
		Column("sat", "sun", "mon", "tue", "wed", "updated_at").
		WherePK().
		Exec(ctx)
	return database.MapError(err)
}

// SetTicketOwner gives an unowned ticket to ownerID. A user who already owns
// a ticket gets models.ErrUniqueViolation.
func (d *DB) SetTicketOwner(ctx context.Context, ticketID int64, ownerID string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("owner_id = ?", ownerID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", ticketID).
		Where("owner_id IS NULL").
		Exec(ctx)
	if err != nil {
		return database.MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (d *DB) DeleteTicket(ctx context.Context, id int64) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Ticket)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return database.MapError(err)
}

// ---------------- INVITATIONS ----------------

func (d *DB) CreateInvitation(ctx context.Context, inv *models.TicketInvitation) error {
	now := time.Now().UTC()
	inv.CreatedAt, inv.UpdatedAt = now, now
	_, err := d.Bun.NewInsert().Model(inv).Returning("id").Exec(ctx)
	return database.MapError(err)
}

func (d *DB) getInvitation(ctx context.Context, column string, value interface{}) (*models.TicketInvitation, error) {
	var inv models.TicketInvitation
	err := d.Bun.NewSelect().
		Model(&inv).
		Where("? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &inv, nil
}

func (d *DB) GetInvitationByToken(ctx context.Context, token string) (*models.TicketInvitation, error) {
	return d.getInvitation(ctx, "token", token)
}

func (d *DB) GetInvitationByTicket(ctx context.Context, ticketID int64) (*models.TicketInvitation, error) {
	return d.getInvitation(ctx, "ticket_id", ticketID)
}

func (d *DB) GetInvitationByEmail(ctx context.Context, emailAddr string) (*models.TicketInvitation, error) {
	return d.getInvitation(ctx, "email_addr", emailAddr)
}

// MarkInvitationClaimed flips an unclaimed invitation to claimed. It returns
// false if the invitation was already claimed.
func (d *DB) MarkInvitationClaimed(ctx context.Context, id int64) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.TicketInvitation)(nil)).
		Set("status = ?", models.InvitationClaimed).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", models.InvitationUnclaimed).
		Exec(ctx)
	if err != nil {
		return false, database.MapError(err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (d *DB) DeleteInvitationForTicket(ctx context.Context, ticketID int64) error {
	_, err := d.Bun.NewDelete().
		Model((*models.TicketInvitation)(nil)).
		Where("ticket_id = ?", ticketID).
		Exec(ctx)
	return database.MapError(err)
}

// ---------------- USERS & OUTBOX ----------------

// UpsertUser records the latest name and email seen for a user.
func (d *DB) UpsertUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := d.Bun.NewInsert().
		Model(user).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("email_addr = EXCLUDED.email_addr").
		Exec(ctx)
	return database.MapError(err)
}

func (d *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().Model(&user).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &user, nil
}

func (d *DB) Enqueue(ctx context.Context, msgs ...*models.OutboxMessage) error {
	return (&outboxdb.DB{Bun: d.Bun}).Enqueue(ctx, msgs...)
}
