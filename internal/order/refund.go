package order

import (
	"context"
	"errors"
	"fmt"

	"ms-registration/internal/models"
	"ms-registration/internal/notify"
	"ms-registration/internal/outbox"
	"ms-registration/internal/payment"
	"ms-registration/internal/scrambler"
)

// maxCreditNoteAttempts bounds how often the local half of a refund is
// retried after losing a race for the next credit note number.
const maxCreditNoteAttempts = 3

// RefundTicket refunds the order row that sold ticketID.
func (s *OrderService) RefundTicket(ctx context.Context, ticketID int64, reason string) (*models.Refund, error) {
	row, err := s.DB.GetOrderRowByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("order row for ticket %d: %w", ticketID, err)
	}
	return s.RefundRow(ctx, row.ID, reason)
}

// RefundRow gives back the cost of one order row and issues a credit note
// for it. The row's ticket and any invitation for it are deleted.
//
// The gateway is called first and only once. If it fails nothing changes
// locally and a *RefundGatewayError is returned.
func (s *OrderService) RefundRow(ctx context.Context, rowID int64, reason string) (*models.Refund, error) {
	row, err := s.DB.GetOrderRow(ctx, rowID)
	if err != nil {
		return nil, fmt.Errorf("order row %d: %w", rowID, err)
	}
	order, err := s.DB.GetOrderByID(ctx, row.OrderID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", row.OrderID, err)
	}
	if !order.IsSuccessful() {
		return nil, &InvalidStateError{Op: "refund", OrderID: order.ID, Status: order.Status}
	}
	if row.Item() == nil {
		return nil, &InvalidStateError{Op: "refund", OrderID: order.ID, Status: order.Status, Detail: fmt.Sprintf("row %d has already been refunded", row.ID)}
	}

	ref := orderRef(order.ID)
	amount := row.CostInclVAT()
	res, err := s.Gateway.CreateRefund(ctx, payment.RefundRequest{
		ChargeID:       order.GatewayChargeID,
		AmountMinor:    &amount,
		IdempotencyKey: fmt.Sprintf("refund-row-%d", row.ID),
		Metadata:       map[string]string{"order_id": ref, "reason": reason},
	})
	if err != nil {
		return nil, s.escalateRefund(ctx, &RefundGatewayError{OrderID: order.ID, ChargeID: order.GatewayChargeID, AmountMinor: amount, Err: err})
	}
	s.log.LogRefund("GATEWAY", ref, fmt.Sprintf("row %d refunded %s as %s", row.ID, notify.FormatPounds(amount), res.ID))

	var refund *models.Refund
	for attempt := 1; ; attempt++ {
		refund, err = s.recordRefund(ctx, rowID, reason, res)
		if err == nil || !errors.Is(err, models.ErrUniqueViolation) || attempt == maxCreditNoteAttempts {
			break
		}
		s.log.Warn("REFUND", fmt.Sprintf("Credit note number taken for order %s, retrying (%d/%d)", ref, attempt, maxCreditNoteAttempts))
	}
	if err != nil {
		msg := fmt.Sprintf("gateway refund %s for row %d succeeded but was not recorded: %v", res.ID, row.ID, err)
		s.log.Escalate(ref, msg)
		s.queueOpsAlert(ctx, order.ID, order.GatewayChargeID, amount, msg)
		return nil, err
	}

	s.log.LogRefund("CREDIT_NOTE", ref, refund.FullCreditNoteNumber(s.cfg.CreditNotePrefix, derefInt(order.InvoiceNumber)))
	return refund, nil
}

// recordRefund is the local half of a row refund.
func (s *OrderService) recordRefund(ctx context.Context, rowID int64, reason string, res payment.RefundResult) (*models.Refund, error) {
	var refund *models.Refund
	err := s.DB.InTx(ctx, func(ctx context.Context, tx Queries) error {
		row, err := tx.GetOrderRow(ctx, rowID)
		if err != nil {
			return err
		}
		order, err := tx.LockOrder(ctx, row.OrderID)
		if err != nil {
			return err
		}
		item, ok := row.Item().(models.TicketItem)
		if !ok {
			return &InvalidStateError{Op: "refund", OrderID: order.ID, Status: order.Status, Detail: fmt.Sprintf("row %d has already been refunded", row.ID)}
		}

		n, err := tx.CountRefunds(ctx, order.ID)
		if err != nil {
			return err
		}
		refundTime := res.CreatedAt.UTC()
		refund = &models.Refund{
			OrderID:           order.ID,
			Reason:            reason,
			CreditNoteNumber:  n + 1,
			GatewayRefundID:   res.ID,
			GatewayRefundTime: &refundTime,
			CreatedAt:         s.now(),
		}
		if err := tx.InsertRefund(ctx, refund); err != nil {
			return err
		}

		refundedAt := s.now()
		row.RefundID = &refund.ID
		row.RefundedAt = &refundedAt
		row.SetItem(nil)
		if err := tx.DetachOrderRow(ctx, row); err != nil {
			return err
		}
		if err := s.Tickets.Release(ctx, tx, item.TicketID); err != nil {
			return err
		}

		ref := orderRef(order.ID)
		event, err := outbox.NewEvent(s.cfg.Topics.OrderRefunded, ref, models.OrderEvent{
			Type:          models.EventOrderRefunded,
			OrderID:       ref,
			PurchaserID:   order.PurchaserID,
			InvoiceNumber: order.FullInvoiceNumber(s.cfg.InvoicePrefix),
			CreditNote:    refund.FullCreditNoteNumber(s.cfg.CreditNotePrefix, derefInt(order.InvoiceNumber)),
			ChargeID:      order.GatewayChargeID,
			AmountMinor:   row.CostInclVAT(),
			Currency:      s.cfg.Currency,
			TicketIDs:     []string{scrambler.Tickets.Forward(item.TicketID)},
			Reason:        reason,
			OccurredAt:    s.now(),
		})
		if err != nil {
			return err
		}
		return tx.Enqueue(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// GetRefunds lists the credit notes issued against an order.
func (s *OrderService) GetRefunds(ctx context.Context, orderID int64) ([]models.Refund, error) {
	return s.DB.GetRefunds(ctx, orderID)
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
