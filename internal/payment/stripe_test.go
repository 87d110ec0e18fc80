package payment

import (
	"context"
	"errors"
	"testing"

	"ms-registration/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

type fakeChargeAPI struct {
	params *stripe.ChargeParams
	charge *stripe.Charge
	err    error
}

func (f *fakeChargeAPI) New(params *stripe.ChargeParams) (*stripe.Charge, error) {
	f.params = params
	return f.charge, f.err
}

type fakeRefundAPI struct {
	params *stripe.RefundParams
	refund *stripe.Refund
	err    error
}

func (f *fakeRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.params = params
	return f.refund, f.err
}

func TestStripeCreateCharge(t *testing.T) {
	charges := &fakeChargeAPI{charge: &stripe.Charge{ID: "ch_123", Created: 1530000000}}
	g := newStripeGateway(charges, &fakeRefundAPI{}, logger.New(nil))

	res, err := g.CreateCharge(context.Background(), ChargeRequest{
		AmountMinor:         15000,
		Currency:            "GBP",
		Description:         "PyCon UK 2018 order ABC",
		StatementDescriptor: "PyCon UK 2018 order ABCDEFGHIJK",
		Token:               "tok_visa",
		IdempotencyKey:      "charge-1-tok_visa",
	})
	require.NoError(t, err)
	assert.Equal(t, "ch_123", res.ID)
	assert.Equal(t, int64(1530000000), res.CreatedAt.Unix())

	require.NotNil(t, charges.params)
	assert.Equal(t, int64(15000), *charges.params.Amount)
	assert.Equal(t, "gbp", *charges.params.Currency)
	assert.Len(t, *charges.params.StatementDescriptor, MaxStatementDescriptorLen)
	assert.Equal(t, "charge-1-tok_visa", *charges.params.IdempotencyKey)
}

func TestStripeCreateChargeCardError(t *testing.T) {
	charges := &fakeChargeAPI{err: &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined."}}
	g := newStripeGateway(charges, &fakeRefundAPI{}, logger.New(nil))

	_, err := g.CreateCharge(context.Background(), ChargeRequest{AmountMinor: 100, Currency: "gbp", Token: "tok_x"})

	var cardErr *CardError
	require.True(t, errors.As(err, &cardErr))
	assert.Equal(t, "Your card was declined.", cardErr.Reason)
}

func TestStripeCreateChargeOtherError(t *testing.T) {
	charges := &fakeChargeAPI{err: &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "boom"}}
	g := newStripeGateway(charges, &fakeRefundAPI{}, logger.New(nil))

	_, err := g.CreateCharge(context.Background(), ChargeRequest{AmountMinor: 100, Currency: "gbp", Token: "tok_x"})
	require.Error(t, err)

	var cardErr *CardError
	assert.False(t, errors.As(err, &cardErr))
}

func TestStripeCreateRefund(t *testing.T) {
	refunds := &fakeRefundAPI{refund: &stripe.Refund{ID: "re_1", Created: 1530000100}}
	g := newStripeGateway(&fakeChargeAPI{}, refunds, logger.New(nil))

	amount := int64(4200)
	res, err := g.CreateRefund(context.Background(), RefundRequest{ChargeID: "ch_123", AmountMinor: &amount})
	require.NoError(t, err)
	assert.Equal(t, "re_1", res.ID)
	assert.Equal(t, "ch_123", *refunds.params.Charge)
	assert.Equal(t, int64(4200), *refunds.params.Amount)

	_, err = g.CreateRefund(context.Background(), RefundRequest{ChargeID: "ch_123"})
	require.NoError(t, err)
	assert.Nil(t, refunds.params.Amount)
}

func TestMockGateway(t *testing.T) {
	ctx := context.Background()
	m := NewMockGateway()

	first, err := m.CreateCharge(ctx, ChargeRequest{AmountMinor: 100, Token: "tok_ok", IdempotencyKey: "k1"})
	require.NoError(t, err)
	again, err := m.CreateCharge(ctx, ChargeRequest{AmountMinor: 100, Token: "tok_ok", IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, m.ChargeCount())

	_, err = m.CreateCharge(ctx, ChargeRequest{Token: MockDeclineToken})
	var cardErr *CardError
	assert.ErrorAs(t, err, &cardErr)

	m.RefundErr = errors.New("gateway down")
	_, err = m.CreateRefund(ctx, RefundRequest{ChargeID: first.ID})
	assert.Error(t, err)
	assert.Empty(t, m.RefundedRequests())
}
