package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-registration/internal/models"
	"ms-registration/internal/notify"
	"ms-registration/internal/outbox"
	"ms-registration/internal/payment"
	"ms-registration/internal/scrambler"
	tickets "ms-registration/internal/tickets/service"

	"github.com/google/uuid"
)

// ProcessCharge takes payment for a pending or failed order and confirms it.
//
// A declined card marks the order failed and returns the *payment.CardError.
// Any other gateway error is returned as is and the order is left alone. If
// the charge went through but the order could not be confirmed, the charge
// is refunded and the order marked errored. The returned error is then the
// confirmation error (a *CommitConflictError for a uniqueness clash), or a
// *RefundGatewayError when the refund failed too.
func (s *OrderService) ProcessCharge(ctx context.Context, orderID int64, token string) (*models.Order, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", orderID, err)
	}
	if !order.PaymentRequired() {
		return order, &InvalidStateError{Op: "charge", OrderID: order.ID, Status: order.Status}
	}
	if order.UnconfirmedDetails == nil {
		return order, &InvalidStateError{Op: "charge", OrderID: order.ID, Status: order.Status, Detail: "nothing to pay for"}
	}

	release, err := s.acquireGuard(ctx, order.ID)
	if err != nil {
		return order, err
	}
	defer release()

	total, err := ChargeAmount(order)
	if err != nil {
		return order, err
	}

	ref := orderRef(order.ID)
	charge, err := s.Gateway.CreateCharge(ctx, payment.ChargeRequest{
		AmountMinor:         total,
		Currency:            s.cfg.Currency,
		Description:         fmt.Sprintf("%s order %s", s.cfg.Conference, ref),
		StatementDescriptor: payment.TruncateStatementDescriptor(fmt.Sprintf("%s %s", s.cfg.StatementDescriptor, ref)),
		Token:               token,
		IdempotencyKey:      fmt.Sprintf("order-%d-charge-%s", order.ID, token),
		Metadata:            map[string]string{"order_id": ref},
	})
	if err != nil {
		var cardErr *payment.CardError
		if errors.As(err, &cardErr) {
			s.log.LogPayment("DECLINED", ref, cardErr.Reason)
			failed, markErr := s.MarkAsFailed(ctx, order.ID, cardErr.Reason)
			if markErr != nil {
				return order, markErr
			}
			return failed, err
		}
		s.log.Error("PAYMENT", fmt.Sprintf("Charge for order %s failed: %v", ref, err))
		return order, fmt.Errorf("charge order %s: %w", ref, err)
	}
	s.log.LogPayment("CHARGED", ref, fmt.Sprintf("%s for %s", charge.ID, notify.FormatPounds(total)))

	confirmed, err := s.Confirm(ctx, order.ID, charge.ID, charge.CreatedAt)
	if err == nil {
		return confirmed, nil
	}

	if errors.Is(err, ErrInvalidState) {
		// Another submission confirmed the order first.
		current, getErr := s.DB.GetOrderByID(ctx, order.ID)
		if getErr != nil {
			current = order
		}
		if current.GatewayChargeID == charge.ID {
			return current, nil
		}
		s.log.Warn("ORDER", fmt.Sprintf("Order %s already %s, refunding duplicate charge %s", ref, current.Status, charge.ID))
		if refundErr := s.refundCharge(ctx, order.ID, charge.ID, total); refundErr != nil {
			return current, refundErr
		}
		return current, err
	}

	// Any other failure leaves a charge with no confirmed order behind it:
	// give the money back and take the order out of the payable states.
	var conflict *CommitConflictError
	if errors.As(err, &conflict) {
		s.log.Warn("ORDER", fmt.Sprintf("Order %s could not be confirmed, refunding %s: %v", ref, charge.ID, err))
	} else {
		s.log.Error("ORDER", fmt.Sprintf("Confirming order %s after charge %s failed, refunding: %v", ref, charge.ID, err))
	}
	refundErr := s.refundCharge(ctx, order.ID, charge.ID, total)
	errored, markErr := s.MarkAsErroredAfterCharge(ctx, order.ID, charge.ID)
	if markErr != nil {
		s.log.Escalate(ref, fmt.Sprintf("could not mark order errored after charge %s: %v", charge.ID, markErr))
		errored = order
	}
	if refundErr != nil {
		return errored, refundErr
	}
	return errored, err
}

// acquireGuard takes the charge guard for orderID. Redis being unavailable
// does not block payments.
func (s *OrderService) acquireGuard(ctx context.Context, orderID int64) (func(), error) {
	noop := func() {}
	if s.Guard == nil {
		return noop, nil
	}
	holder := uuid.NewString()
	ok, err := s.Guard.Acquire(ctx, orderID, holder)
	if err != nil {
		s.log.Warn("REDIS", fmt.Sprintf("Charge guard unavailable for order %s: %v", orderRef(orderID), err))
		return noop, nil
	}
	if !ok {
		return nil, ErrChargeInProgress
	}
	return func() {
		if err := s.Guard.Release(context.Background(), orderID, holder); err != nil {
			s.log.Warn("REDIS", fmt.Sprintf("Releasing charge guard for order %s: %v", orderRef(orderID), err))
		}
	}, nil
}

// Confirm records a successful charge: the order's tickets, invitations and
// rows are created, an invoice number is allocated and the notifications are
// queued, all in one transaction.
func (s *OrderService) Confirm(ctx context.Context, orderID int64, chargeID string, chargeTime time.Time) (*models.Order, error) {
	var order *models.Order
	var m *tickets.Materialized

	err := s.DB.InTx(ctx, func(ctx context.Context, tx Queries) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.PaymentRequired() {
			return &InvalidStateError{Op: "confirm", OrderID: order.ID, Status: order.Status}
		}
		purchaser, err := tx.GetUser(ctx, order.PurchaserID)
		if err != nil {
			return fmt.Errorf("purchaser %s: %w", order.PurchaserID, err)
		}

		m, err = s.Tickets.Materialize(ctx, tx, order, purchaser)
		if err != nil {
			return err
		}
		for i := range m.Rows {
			if err := tx.InsertOrderRow(ctx, &m.Rows[i]); err != nil {
				return fmt.Errorf("insert order row: %w", err)
			}
		}

		invoiceNumber, err := tx.NextInvoiceNumber(ctx)
		if err != nil {
			return err
		}
		chargeTime := chargeTime.UTC()
		order.Status = models.OrderStatusSuccessful
		order.InvoiceNumber = &invoiceNumber
		order.GatewayChargeID = chargeID
		order.GatewayChargeTime = &chargeTime
		order.FailureReason = ""
		order.UnconfirmedDetails = nil
		order.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, order,
			"status", "invoice_number", "gateway_charge_id", "gateway_charge_time",
			"failure_reason", "unconfirmed_details", "updated_at"); err != nil {
			return err
		}

		return s.queueConfirmation(ctx, tx, order, purchaser, m)
	})
	if err != nil {
		if errors.Is(err, models.ErrUniqueViolation) {
			return nil, &CommitConflictError{OrderID: orderID, ChargeID: chargeID, Err: err}
		}
		return nil, err
	}

	s.log.LogOrder("CONFIRM", orderRef(order.ID), fmt.Sprintf("invoice %s, %d tickets", order.FullInvoiceNumber(s.cfg.InvoicePrefix), len(m.Tickets)))
	return order, nil
}

func (s *OrderService) queueConfirmation(ctx context.Context, tx Queries, order *models.Order, purchaser *models.User, m *tickets.Materialized) error {
	ref := orderRef(order.ID)

	var totalExcl, totalIncl int64
	for i := range m.Rows {
		totalExcl += m.Rows[i].CostExclVAT
		totalIncl += m.Rows[i].CostInclVAT()
	}

	data := notify.ConfirmationData{
		Conference:    s.cfg.Conference,
		OrderID:       ref,
		PurchaserName: purchaser.Name,
		NumTickets:    len(m.Tickets),
		TotalInclVAT:  totalIncl,
		VAT:           totalIncl - totalExcl,
		ReceiptURL:    s.receiptURL(order.ID),
	}
	ticketIDs := make([]string, 0, len(m.Tickets))
	for i, ticket := range m.Tickets {
		ticketIDs = append(ticketIDs, scrambler.Tickets.Forward(ticket.ID))
		row := m.Rows[i]
		if ticket.OwnerID != nil && *ticket.OwnerID == purchaser.ID {
			data.TicketForSelf = fmt.Sprintf("%s (%s)", row.ItemDescr, row.ItemDescrExtra)
		} else {
			data.TicketsForOthers = append(data.TicketsForOthers, notify.OtherTicket{EmailAddr: ticket.InviteeEmailAddr, Descr: row.ItemDescr})
		}
	}

	subject, body, err := notify.OrderConfirmation(data)
	if err != nil {
		return err
	}
	event, err := outbox.NewEvent(s.cfg.Topics.OrderConfirmed, ref, models.OrderEvent{
		Type:          models.EventOrderConfirmed,
		OrderID:       ref,
		PurchaserID:   order.PurchaserID,
		InvoiceNumber: order.FullInvoiceNumber(s.cfg.InvoicePrefix),
		ChargeID:      order.GatewayChargeID,
		AmountMinor:   totalIncl,
		Currency:      s.cfg.Currency,
		TicketIDs:     ticketIDs,
		OccurredAt:    s.now(),
	})
	if err != nil {
		return err
	}
	return tx.Enqueue(ctx, outbox.NewEmail(purchaser.EmailAddr, subject, body), event)
}

// MarkAsFailed records a declined payment. The order can be paid again.
func (s *OrderService) MarkAsFailed(ctx context.Context, orderID int64, reason string) (*models.Order, error) {
	var order *models.Order
	err := s.DB.InTx(ctx, func(ctx context.Context, tx Queries) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.PaymentRequired() {
			return &InvalidStateError{Op: "mark failed", OrderID: order.ID, Status: order.Status}
		}
		order.Status = models.OrderStatusFailed
		order.FailureReason = reason
		order.UpdatedAt = s.now()
		return tx.UpdateOrder(ctx, order, "status", "failure_reason", "updated_at")
	})
	if err != nil {
		return nil, err
	}
	s.log.LogOrder("FAILED", orderRef(order.ID), reason)
	return order, nil
}

// MarkAsErroredAfterCharge records that a charge was taken for the order but
// could not be turned into a confirmed order. The charge id is kept so the
// charge can be traced; no invoice number is held.
func (s *OrderService) MarkAsErroredAfterCharge(ctx context.Context, orderID int64, chargeID string) (*models.Order, error) {
	var order *models.Order
	err := s.DB.InTx(ctx, func(ctx context.Context, tx Queries) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.PaymentRequired() {
			return &InvalidStateError{Op: "mark errored", OrderID: order.ID, Status: order.Status}
		}
		order.Status = models.OrderStatusErrored
		order.GatewayChargeID = chargeID
		order.FailureReason = ""
		order.InvoiceNumber = nil
		order.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, order, "status", "gateway_charge_id", "failure_reason", "invoice_number", "updated_at"); err != nil {
			return err
		}

		ref := orderRef(order.ID)
		event, err := outbox.NewEvent(s.cfg.Topics.OrderErrored, ref, models.OrderEvent{
			Type:        models.EventOrderErrored,
			OrderID:     ref,
			PurchaserID: order.PurchaserID,
			ChargeID:    chargeID,
			Currency:    s.cfg.Currency,
			OccurredAt:  s.now(),
		})
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	s.log.LogOrder("ERRORED", orderRef(order.ID), "charge "+chargeID)
	return order, nil
}

// refundCharge gives back the whole of a charge that did not result in a
// confirmed order.
func (s *OrderService) refundCharge(ctx context.Context, orderID int64, chargeID string, amount int64) error {
	ref := orderRef(orderID)
	res, err := s.Gateway.CreateRefund(ctx, payment.RefundRequest{
		ChargeID:       chargeID,
		IdempotencyKey: "refund-charge-" + chargeID,
		Metadata:       map[string]string{"order_id": ref},
	})
	if err != nil {
		return s.escalateRefund(ctx, &RefundGatewayError{OrderID: orderID, ChargeID: chargeID, AmountMinor: amount, Err: err})
	}
	s.log.LogRefund("CHARGE", ref, fmt.Sprintf("refunded %s (%s) as %s", chargeID, notify.FormatPounds(amount), res.ID))
	return nil
}

// escalateRefund logs a failed refund for an operator and queues an ops
// alert. It returns rerr.
func (s *OrderService) escalateRefund(ctx context.Context, rerr *RefundGatewayError) error {
	ref := orderRef(rerr.OrderID)
	s.log.Escalate(ref, rerr.Error())
	s.queueOpsAlert(ctx, rerr.OrderID, rerr.ChargeID, rerr.AmountMinor, "refund failed: "+rerr.Err.Error())
	return rerr
}

// queueOpsAlert enqueues an ops alert outside any transaction. Failure to
// queue it is only logged.
func (s *OrderService) queueOpsAlert(ctx context.Context, orderID int64, chargeID string, amount int64, reason string) {
	ref := orderRef(orderID)
	alert, err := outbox.NewEvent(s.cfg.Topics.OpsAlert, ref, models.OrderEvent{
		Type:        models.EventOpsAlert,
		OrderID:     ref,
		ChargeID:    chargeID,
		AmountMinor: amount,
		Currency:    s.cfg.Currency,
		Reason:      reason,
		OccurredAt:  s.now(),
	})
	if err == nil {
		err = s.DB.Enqueue(ctx, alert)
	}
	if err != nil {
		s.log.Error("OUTBOX", fmt.Sprintf("Could not queue ops alert for order %s: %v", ref, err))
	}
}

// ChargeAmount is what ProcessCharge would charge for order right now.
func ChargeAmount(order *models.Order) (int64, error) {
	if order.UnconfirmedDetails == nil {
		return 0, nil
	}
	rows, err := tickets.BuildOrderRows(*order.UnconfirmedDetails)
	if err != nil {
		return 0, err
	}
	var total int64
	for i := range rows {
		total += rows[i].CostInclVAT()
	}
	return total, nil
}
