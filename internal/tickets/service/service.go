package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/notify"
	"ms-registration/internal/outbox"
	"ms-registration/internal/prices"
	"ms-registration/internal/scrambler"
	"ms-registration/internal/utils"
)

var (
	ErrAlreadyHasTicket  = errors.New("user already has a ticket")
	ErrInvitationClaimed = errors.New("invitation has already been claimed")
	ErrAlreadyInvited    = errors.New("email address already has an invitation")
	ErrNotFreeTicket     = errors.New("ticket is not a free ticket")
	ErrInvalidTicket     = errors.New("invalid ticket details")
)

// TxStore is the set of ticket queries usable inside a transaction.
type TxStore interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicketByID(ctx context.Context, id int64) (*models.Ticket, error)
	GetTicketByOwner(ctx context.Context, ownerID string) (*models.Ticket, error)
	UpdateTicketDays(ctx context.Context, ticket *models.Ticket) error
	SetTicketOwner(ctx context.Context, ticketID int64, ownerID string) error
	DeleteTicket(ctx context.Context, id int64) error

	CreateInvitation(ctx context.Context, inv *models.TicketInvitation) error
	GetInvitationByToken(ctx context.Context, token string) (*models.TicketInvitation, error)
	GetInvitationByTicket(ctx context.Context, ticketID int64) (*models.TicketInvitation, error)
	GetInvitationByEmail(ctx context.Context, emailAddr string) (*models.TicketInvitation, error)
	MarkInvitationClaimed(ctx context.Context, id int64) (bool, error)
	DeleteInvitationForTicket(ctx context.Context, ticketID int64) error

	UpsertUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)

	Enqueue(ctx context.Context, msgs ...*models.OutboxMessage) error
}

type Store interface {
	TxStore
	InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}

type Config struct {
	Conference string
	Domain     string
}

type TicketService struct {
	DB       Store
	cfg      Config
	log      *logger.Logger
	newToken func() (string, error)
}

func NewTicketService(db Store, cfg Config, log *logger.Logger) *TicketService {
	return &TicketService{
		DB:  db,
		cfg: cfg,
		log: log,
		newToken: func() (string, error) {
			return utils.GenerateToken(utils.InvitationTokenLength)
		},
	}
}

// ---------------- ORDER PROJECTION ----------------

// BuildOrderRows turns an order's unconfirmed details into unsaved rows, each
// carrying a draft ticket. The purchaser's own ticket comes first, then the
// others in the order they were requested.
func BuildOrderRows(details models.UnconfirmedDetails) ([]models.OrderRow, error) {
	var rows []models.OrderRow

	addRow := func(days []string, emailAddr, name string) error {
		ticket := &models.Ticket{
			Rate:             details.Rate,
			InviteeEmailAddr: emailAddr,
			InviteeName:      name,
		}
		ticket.SetDays(days)
		cost, err := prices.CostExclVAT(ticket.Rate, ticket.NumDays())
		if err != nil {
			return err
		}
		rows = append(rows, models.OrderRow{
			CostExclVAT:    cost,
			ItemDescr:      ticket.DescrForOrder(),
			ItemDescrExtra: ticket.DaysSentence(),
			Ticket:         ticket,
		})
		return nil
	}

	if len(details.DaysForSelf) > 0 {
		if err := addRow(details.DaysForSelf, "", ""); err != nil {
			return nil, err
		}
	}
	for _, other := range details.EmailAddrsAndDaysForOthers {
		if err := addRow(other.Days, normaliseEmail(other.EmailAddr), other.Name); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Materialized is what Materialize wrote for one order.
type Materialized struct {
	Rows        []models.OrderRow
	Tickets     []*models.Ticket
	Invitations []*models.TicketInvitation
}

// Materialize creates the tickets and invitations for a paid order inside
// tx, queues one invitation email per ticket bought for someone else, and
// returns the order rows pointing at the new tickets. The rows themselves
// are left for the caller to insert. Unique violations (an owner who already
// has a ticket, an email already invited) are returned wrapping
// models.ErrUniqueViolation.
func (s *TicketService) Materialize(ctx context.Context, tx TxStore, order *models.Order, purchaser *models.User) (*Materialized, error) {
	if order.UnconfirmedDetails == nil {
		return nil, fmt.Errorf("order %d has no unconfirmed details", order.ID)
	}
	rows, err := BuildOrderRows(*order.UnconfirmedDetails)
	if err != nil {
		return nil, err
	}

	out := &Materialized{}
	for i := range rows {
		row := &rows[i]
		ticket := row.Ticket

		if ticket.InviteeEmailAddr == "" {
			owner := purchaser.ID
			ticket.OwnerID = &owner
		}
		if err := tx.CreateTicket(ctx, ticket); err != nil {
			return nil, fmt.Errorf("create ticket for order %d: %w", order.ID, err)
		}

		if ticket.InviteeEmailAddr != "" {
			inv, err := s.invite(ctx, tx, ticket, ticket.InviteeEmailAddr, purchaser.Name)
			if err != nil {
				return nil, err
			}
			out.Invitations = append(out.Invitations, inv)
		}

		row.OrderID = order.ID
		row.SetItem(models.TicketItem{TicketID: ticket.ID})
		out.Tickets = append(out.Tickets, ticket)
	}
	out.Rows = rows
	return out, nil
}

// invite creates an invitation for ticket and queues its email.
func (s *TicketService) invite(ctx context.Context, tx TxStore, ticket *models.Ticket, emailAddr, purchaserName string) (*models.TicketInvitation, error) {
	token, err := s.newToken()
	if err != nil {
		return nil, err
	}
	inv := &models.TicketInvitation{
		TicketID:  ticket.ID,
		EmailAddr: emailAddr,
		Token:     token,
		Status:    models.InvitationUnclaimed,
	}
	if err := tx.CreateInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation for %s: %w", emailAddr, err)
	}

	subject, body, err := notify.Invitation(notify.InvitationData{
		Conference:    s.cfg.Conference,
		TicketID:      scrambler.Tickets.Forward(ticket.ID),
		PurchaserName: purchaserName,
		ClaimURL:      s.ClaimURL(token),
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Enqueue(ctx, outbox.NewEmail(emailAddr, subject, body)); err != nil {
		return nil, fmt.Errorf("queue invitation email: %w", err)
	}
	return inv, nil
}

// Release deletes a ticket and any invitation for it. Used when the order
// row selling the ticket is refunded.
func (s *TicketService) Release(ctx context.Context, tx TxStore, ticketID int64) error {
	if err := tx.DeleteInvitationForTicket(ctx, ticketID); err != nil {
		return fmt.Errorf("delete invitation for ticket %d: %w", ticketID, err)
	}
	if err := tx.DeleteTicket(ctx, ticketID); err != nil {
		return fmt.Errorf("delete ticket %d: %w", ticketID, err)
	}
	s.log.Info("TICKET", fmt.Sprintf("Released ticket %s", scrambler.Tickets.Forward(ticketID)))
	return nil
}

func (s *TicketService) ClaimURL(token string) string {
	return fmt.Sprintf("%s/invitations/%s/", strings.TrimRight(s.cfg.Domain, "/"), token)
}

// ---------------- TICKETS ----------------

func (s *TicketService) GetTicket(ctx context.Context, ticketID int64) (*models.Ticket, error) {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("ticket %d: %w", ticketID, err)
	}
	return ticket, nil
}

// GetTicketForOwner returns the user's ticket, or models.ErrNotFound.
func (s *TicketService) GetTicketForOwner(ctx context.Context, ownerID string) (*models.Ticket, error) {
	return s.DB.GetTicketByOwner(ctx, ownerID)
}

// GetInvitation returns the invitation for token together with its ticket.
func (s *TicketService) GetInvitation(ctx context.Context, token string) (*models.TicketInvitation, *models.Ticket, error) {
	inv, err := s.DB.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	ticket, err := s.DB.GetTicketByID(ctx, inv.TicketID)
	if err != nil {
		return nil, nil, err
	}
	return inv, ticket, nil
}

// ClaimInvitation hands the invited ticket to user.
func (s *TicketService) ClaimInvitation(ctx context.Context, token string, user *models.User) (*models.Ticket, error) {
	var claimed *models.Ticket
	err := s.DB.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		if err := tx.UpsertUser(ctx, user); err != nil {
			return err
		}
		inv, err := tx.GetInvitationByToken(ctx, token)
		if err != nil {
			return err
		}
		if inv.Status == models.InvitationClaimed {
			return ErrInvitationClaimed
		}
		if _, err := tx.GetTicketByOwner(ctx, user.ID); err == nil {
			return ErrAlreadyHasTicket
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}

		if err := tx.SetTicketOwner(ctx, inv.TicketID, user.ID); err != nil {
			if errors.Is(err, models.ErrUniqueViolation) {
				return ErrAlreadyHasTicket
			}
			if errors.Is(err, models.ErrNotFound) {
				return ErrInvitationClaimed
			}
			return err
		}
		ok, err := tx.MarkInvitationClaimed(ctx, inv.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvitationClaimed
		}

		claimed, err = tx.GetTicketByID(ctx, inv.TicketID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("TICKET", fmt.Sprintf("User %s claimed ticket %s", user.ID, scrambler.Tickets.Forward(claimed.ID)))
	return claimed, nil
}

// ---------------- FREE TICKETS ----------------

// CreateFreeTicket issues a free ticket to emailAddr and sends them an
// invitation to claim it.
func (s *TicketService) CreateFreeTicket(ctx context.Context, emailAddr, reason string, days []string) (*models.Ticket, *models.TicketInvitation, error) {
	emailAddr = normaliseEmail(emailAddr)
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return nil, nil, fmt.Errorf("%w: invalid email address %q", ErrInvalidTicket, emailAddr)
	}
	if err := validateDays(days); err != nil {
		return nil, nil, err
	}

	ticket := &models.Ticket{Rate: prices.RateFree, FreeReason: reason}
	ticket.SetDays(days)

	var inv *models.TicketInvitation
	err := s.DB.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		if _, err := tx.GetInvitationByEmail(ctx, emailAddr); err == nil {
			return ErrAlreadyInvited
		} else if !errors.Is(err, models.ErrNotFound) {
			return err
		}
		if err := tx.CreateTicket(ctx, ticket); err != nil {
			return err
		}
		var err error
		inv, err = s.invite(ctx, tx, ticket, emailAddr, "")
		if errors.Is(err, models.ErrUniqueViolation) {
			return ErrAlreadyInvited
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("TICKET", fmt.Sprintf("Created free ticket %s for %s (%s)", scrambler.Tickets.Forward(ticket.ID), emailAddr, reason))
	return ticket, inv, nil
}

// UpdateFreeTicketDays changes the days on a free ticket.
func (s *TicketService) UpdateFreeTicketDays(ctx context.Context, ticketID int64, days []string) (*models.Ticket, error) {
	if err := validateDays(days); err != nil {
		return nil, err
	}
	var ticket *models.Ticket
	err := s.DB.InTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		ticket, err = tx.GetTicketByID(ctx, ticketID)
		if err != nil {
			return err
		}
		if !ticket.IsFree() {
			return ErrNotFreeTicket
		}
		ticket.SetDays(days)
		return tx.UpdateTicketDays(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func validateDays(days []string) error {
	if len(days) == 0 {
		return fmt.Errorf("%w: ticket needs at least one day", ErrInvalidTicket)
	}
	for _, d := range days {
		if !models.ValidDay(d) {
			return fmt.Errorf("%w: unknown day %q", ErrInvalidTicket, d)
		}
	}
	return nil
}

func normaliseEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
