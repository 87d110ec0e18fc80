package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-registration/internal/logger"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

type stripeChargeAPI interface {
	New(params *stripe.ChargeParams) (*stripe.Charge, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeGateway implements Gateway with the Stripe charges API.
type StripeGateway struct {
	charges stripeChargeAPI
	refunds stripeRefundAPI
	log     *logger.Logger
}

func NewStripeGateway(secretKey string, log *logger.Logger) (*StripeGateway, error) {
	if strings.TrimSpace(secretKey) == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(secretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return newStripeGateway(sc.Charges, sc.Refunds, log), nil
}

func newStripeGateway(charges stripeChargeAPI, refunds stripeRefundAPI, log *logger.Logger) *StripeGateway {
	return &StripeGateway{charges: charges, refunds: refunds, log: log}
}

func (g *StripeGateway) CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	params := &stripe.ChargeParams{
		Amount:      stripe.Int64(req.AmountMinor),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	if req.StatementDescriptor != "" {
		params.StatementDescriptor = stripe.String(TruncateStatementDescriptor(req.StatementDescriptor))
	}
	if err := params.SetSource(req.Token); err != nil {
		return ChargeResult{}, fmt.Errorf("stripe: set charge source: %w", err)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	ch, err := g.charges.New(params)
	if err != nil {
		if cardErr := asCardError(err); cardErr != nil {
			g.log.Warn("STRIPE", fmt.Sprintf("Card declined: %s", cardErr.Reason))
			return ChargeResult{}, cardErr
		}
		g.log.Error("STRIPE", fmt.Sprintf("Charge failed: %v", err))
		return ChargeResult{}, fmt.Errorf("stripe: create charge: %w", err)
	}

	g.log.LogPayment("CHARGE", ch.ID, fmt.Sprintf("Charged %d %s", req.AmountMinor, req.Currency))
	return ChargeResult{ID: ch.ID, CreatedAt: unixTime(ch.Created)}, nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	params := &stripe.RefundParams{
		Charge: stripe.String(req.ChargeID),
	}
	params.Context = ctx
	if req.AmountMinor != nil {
		params.Amount = stripe.Int64(*req.AmountMinor)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	rf, err := g.refunds.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Refund of charge %s failed: %v", req.ChargeID, err))
		return RefundResult{}, fmt.Errorf("stripe: create refund: %w", err)
	}

	g.log.LogRefund("GATEWAY", rf.ID, fmt.Sprintf("Refunded charge %s", req.ChargeID))
	return RefundResult{ID: rf.ID, CreatedAt: unixTime(rf.Created)}, nil
}

func asCardError(err error) *CardError {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return &CardError{Reason: stripeErr.Msg, Code: string(stripeErr.Code)}
	}
	return nil
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
