package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ms-registration/internal/database/testdb"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/outbox"
	outboxdb "ms-registration/internal/outbox/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	Subject, Body, To string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, subject, body, toAddr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{subject, body, toAddr})
	return nil
}

type published struct {
	Topic, Key string
	Value      []byte
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic, key, value})
	return nil
}

func setup(t *testing.T) *outboxdb.DB {
	return &outboxdb.DB{Bun: testdb.New(t)}
}

func TestRunOnceDeliversEmailsAndEvents(t *testing.T) {
	ctx := context.Background()
	store := setup(t)

	event, err := outbox.NewEvent("registration.order.confirmed", "ABC", map[string]string{"order_id": "ABC"})
	require.NoError(t, err)
	require.NoError(t, store.Enqueue(ctx,
		outbox.NewEmail("alice@example.com", "Your order", "Thanks"),
		event,
	))

	mailer := &fakeMailer{}
	publisher := &fakePublisher{}
	d := outbox.NewDispatcher(store, mailer, publisher, logger.New(nil))

	res, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "alice@example.com", mailer.sent[0].To)
	require.Len(t, publisher.msgs, 1)
	assert.Equal(t, "registration.order.confirmed", publisher.msgs[0].Topic)
	assert.JSONEq(t, `{"order_id":"ABC"}`, string(publisher.msgs[0].Value))

	// Nothing left to send.
	res, err = d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, outbox.Result{}, res)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.OutboxStatusSent])
}

func TestRunOnceRetriesThenGivesUp(t *testing.T) {
	ctx := context.Background()
	store := setup(t)
	require.NoError(t, store.Enqueue(ctx, outbox.NewEmail("bob@example.com", "Invitation", "Claim it")))

	mailer := &fakeMailer{err: errors.New("smtp: connection refused")}
	d := outbox.NewDispatcher(store, mailer, nil, logger.New(nil))
	d.MaxAttempts = 3

	for i := 0; i < 2; i++ {
		res, err := d.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Retried)
	}

	res, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	msgs, err := store.ListByKind(ctx, models.OutboxKindEmail)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.OutboxStatusFailed, msgs[0].Status)
	assert.Equal(t, 3, msgs[0].Attempts)
	assert.Contains(t, msgs[0].LastError, "connection refused")

	res, err = d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, outbox.Result{}, res)
}

func TestRunOnceRecoversAfterTransientFailure(t *testing.T) {
	ctx := context.Background()
	store := setup(t)
	require.NoError(t, store.Enqueue(ctx, outbox.NewEmail("carol@example.com", "Receipt", "Paid")))

	mailer := &fakeMailer{err: errors.New("timeout")}
	d := outbox.NewDispatcher(store, mailer, nil, logger.New(nil))

	_, err := d.RunOnce(ctx)
	require.NoError(t, err)

	mailer.err = nil
	res, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Len(t, mailer.sent, 1)
}

func TestEventsWaitWithoutPublisher(t *testing.T) {
	ctx := context.Background()
	store := setup(t)
	event, err := outbox.NewEvent("registration.ops.alert", "1", map[string]string{"reason": "refund failed"})
	require.NoError(t, err)
	require.NoError(t, store.Enqueue(ctx, event))

	d := outbox.NewDispatcher(store, &fakeMailer{}, nil, logger.New(nil))
	d.MaxAttempts = 3
	for i := 0; i < d.MaxAttempts+2; i++ {
		res, err := d.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, outbox.Result{}, res)
	}

	msgs, err := store.ListByKind(ctx, models.OutboxKindEvent)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.OutboxStatusPending, msgs[0].Status)
	assert.Zero(t, msgs[0].Attempts)

	// Once Kafka is back the alert goes out.
	publisher := &fakePublisher{}
	res, err := outbox.NewDispatcher(store, &fakeMailer{}, publisher, logger.New(nil)).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	require.Len(t, publisher.msgs, 1)
	assert.Equal(t, "registration.ops.alert", publisher.msgs[0].Topic)
}

func TestWaitingEventsDoNotBlockEmails(t *testing.T) {
	ctx := context.Background()
	store := setup(t)
	for i := 0; i < 3; i++ {
		event, err := outbox.NewEvent("registration.order.confirmed", "1", map[string]int{"n": i})
		require.NoError(t, err)
		require.NoError(t, store.Enqueue(ctx, event))
	}
	require.NoError(t, store.Enqueue(ctx, outbox.NewEmail("dave@example.com", "Receipt", "Paid")))

	mailer := &fakeMailer{}
	d := outbox.NewDispatcher(store, mailer, nil, logger.New(nil))
	d.BatchSize = 2

	res, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, outbox.Result{Sent: 1}, res)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "dave@example.com", mailer.sent[0].To)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := setup(t)
	d := outbox.NewDispatcher(store, &fakeMailer{}, nil, logger.New(nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Run(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
