// Package order runs the order state machine: taking payment, confirming
// paid orders into tickets, and refunding individual rows.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-registration/internal/config"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/payment"
	"ms-registration/internal/scrambler"
	tickets "ms-registration/internal/tickets/service"
)

// Queries is the set of order queries usable inside a transaction. It
// includes the ticket queries so materialization shares the transaction.
type Queries interface {
	tickets.TxStore

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order, columns ...string) error
	ListOrdersByPurchaser(ctx context.Context, purchaserID string) ([]models.Order, error)

	InsertOrderRow(ctx context.Context, row *models.OrderRow) error
	GetOrderRows(ctx context.Context, orderID int64) ([]models.OrderRow, error)
	GetOrderRow(ctx context.Context, id int64) (*models.OrderRow, error)
	GetOrderRowByTicket(ctx context.Context, ticketID int64) (*models.OrderRow, error)
	DetachOrderRow(ctx context.Context, row *models.OrderRow) error

	NextInvoiceNumber(ctx context.Context) (int, error)

	CountRefunds(ctx context.Context, orderID int64) (int, error)
	InsertRefund(ctx context.Context, refund *models.Refund) error
	GetRefunds(ctx context.Context, orderID int64) ([]models.Refund, error)
}

type Store interface {
	Queries
	InTx(ctx context.Context, fn func(ctx context.Context, tx Queries) error) error
}

// Materializer turns a paid order into tickets and invitations.
type Materializer interface {
	Materialize(ctx context.Context, tx tickets.TxStore, order *models.Order, purchaser *models.User) (*tickets.Materialized, error)
	Release(ctx context.Context, tx tickets.TxStore, ticketID int64) error
}

// ChargeGuard serialises payment submissions for one order.
type ChargeGuard interface {
	Acquire(ctx context.Context, orderID int64, holder string) (bool, error)
	Release(ctx context.Context, orderID int64, holder string) error
}

type Config struct {
	Conference          string
	Domain              string
	Currency            string
	InvoicePrefix       string
	CreditNotePrefix    string
	StatementDescriptor string
	Topics              config.TopicConfig
}

// ConfigFrom picks the order settings out of the service configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Conference:          cfg.Conference.Name,
		Domain:              cfg.Conference.Domain,
		Currency:            cfg.Conference.Currency,
		InvoicePrefix:       cfg.Conference.InvoicePrefix,
		CreditNotePrefix:    cfg.Conference.CreditNotePrefix,
		StatementDescriptor: cfg.Stripe.StatementDescriptor,
		Topics:              cfg.Kafka.Topics,
	}
}

type OrderService struct {
	DB      Store
	Tickets Materializer
	Gateway payment.Gateway
	Guard   ChargeGuard // optional
	cfg     Config
	log     *logger.Logger
	now     func() time.Time
}

func NewOrderService(db Store, tix Materializer, gateway payment.Gateway, guard ChargeGuard, cfg Config, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:      db,
		Tickets: tix,
		Gateway: gateway,
		Guard:   guard,
		cfg:     cfg,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *OrderService) Config() Config { return s.cfg }

// ---------------- PENDING ORDERS ----------------

// CreatePendingOrder records what purchaser wants to buy. Nothing is
// materialized until the order is paid.
func (s *OrderService) CreatePendingOrder(ctx context.Context, purchaser *models.User, billingName, billingAddr string, details models.UnconfirmedDetails) (*models.Order, error) {
	if err := details.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	order := &models.Order{
		PurchaserID:        purchaser.ID,
		BillingName:        strings.TrimSpace(billingName),
		BillingAddr:        strings.TrimSpace(billingAddr),
		Status:             models.OrderStatusPending,
		UnconfirmedDetails: &details,
	}
	err := s.DB.InTx(ctx, func(ctx context.Context, tx Queries) error {
		if err := tx.UpsertUser(ctx, purchaser); err != nil {
			return err
		}
		if err := checkNoTicketForSelf(ctx, tx, purchaser.ID, details); err != nil {
			return err
		}
		return tx.CreateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.log.LogOrder("CREATE", scrambler.Orders.Forward(order.ID), fmt.Sprintf("pending order for %s", purchaser.ID))
	return order, nil
}

// UpdatePendingOrder replaces the billing details and the requested tickets
// of an order that has not been paid for.
func (s *OrderService) UpdatePendingOrder(ctx context.Context, orderID int64, billingName, billingAddr string, details models.UnconfirmedDetails) (*models.Order, error) {
	if err := details.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	var order *models.Order
	err := s.DB.InTx(ctx, func(ctx context.Context, tx Queries) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.PaymentRequired() {
			return &InvalidStateError{Op: "update", OrderID: order.ID, Status: order.Status}
		}
		if err := checkNoTicketForSelf(ctx, tx, order.PurchaserID, details); err != nil {
			return err
		}
		order.BillingName = strings.TrimSpace(billingName)
		order.BillingAddr = strings.TrimSpace(billingAddr)
		order.UnconfirmedDetails = &details
		order.UpdatedAt = s.now()
		return tx.UpdateOrder(ctx, order, "billing_name", "billing_addr", "unconfirmed_details", "updated_at")
	})
	if err != nil {
		return nil, err
	}

	s.log.LogOrder("UPDATE", scrambler.Orders.Forward(order.ID), "pending order updated")
	return order, nil
}

func checkNoTicketForSelf(ctx context.Context, tx Queries, purchaserID string, details models.UnconfirmedDetails) error {
	if len(details.DaysForSelf) == 0 {
		return nil
	}
	_, err := tx.GetTicketByOwner(ctx, purchaserID)
	switch {
	case err == nil:
		return tickets.ErrAlreadyHasTicket
	case errors.Is(err, models.ErrNotFound):
		return nil
	default:
		return err
	}
}

// ---------------- QUERIES ----------------

func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", orderID, err)
	}
	return order, nil
}

// GetOrderRows returns the rows of a paid order, or the projected rows of one
// still awaiting payment.
func (s *OrderService) GetOrderRows(ctx context.Context, order *models.Order) ([]models.OrderRow, error) {
	if order.PaymentRequired() {
		if order.UnconfirmedDetails == nil {
			return nil, nil
		}
		return tickets.BuildOrderRows(*order.UnconfirmedDetails)
	}
	return s.DB.GetOrderRows(ctx, order.ID)
}

func (s *OrderService) ListOrders(ctx context.Context, purchaserID string) ([]models.Order, error) {
	return s.DB.ListOrdersByPurchaser(ctx, purchaserID)
}

// orderRef is the identifier shown to people and other services.
func orderRef(id int64) string {
	return scrambler.Orders.Forward(id)
}

func (s *OrderService) receiptURL(orderID int64) string {
	return fmt.Sprintf("%s/orders/%s/receipt/", strings.TrimRight(s.cfg.Domain, "/"), orderRef(orderID))
}
