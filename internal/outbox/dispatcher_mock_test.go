package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/outbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) PullPending(ctx context.Context, limit int, kinds ...models.OutboxKind) ([]models.OutboxMessage, error) {
	args := m.Called(ctx, limit, kinds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OutboxMessage), args.Error(1)
}

func (m *MockStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockStore) RecordFailure(ctx context.Context, id string, lastError string, giveUp bool) error {
	args := m.Called(ctx, id, lastError, giveUp)
	return args.Error(0)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, subject, body, toAddr string) error {
	args := m.Called(ctx, subject, body, toAddr)
	return args.Error(0)
}

var emailOnly = []models.OutboxKind{models.OutboxKindEmail}

func emailMessage(id string, attempts int) models.OutboxMessage {
	return models.OutboxMessage{
		ID:       id,
		Kind:     models.OutboxKindEmail,
		Subject:  "Your order",
		Body:     "Thanks",
		ToAddr:   "alice@example.com",
		Status:   models.OutboxStatusPending,
		Attempts: attempts,
	}
}

func TestRunOnce_PullFails(t *testing.T) {
	store := new(MockStore)
	mailer := new(MockMailer)
	store.On("PullPending", mock.Anything, outbox.DefaultBatchSize, emailOnly).Return(nil, errors.New("database is locked"))

	d := outbox.NewDispatcher(store, mailer, nil, logger.New(nil))
	_, err := d.RunOnce(context.Background())

	assert.ErrorContains(t, err, "database is locked")
	mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestRunOnce_MarkSentFails(t *testing.T) {
	store := new(MockStore)
	mailer := new(MockMailer)
	store.On("PullPending", mock.Anything, outbox.DefaultBatchSize, emailOnly).Return([]models.OutboxMessage{emailMessage("m1", 0)}, nil)
	mailer.On("Send", mock.Anything, "Your order", "Thanks", "alice@example.com").Return(nil)
	store.On("MarkSent", mock.Anything, "m1", mock.AnythingOfType("time.Time")).Return(errors.New("disk full"))

	d := outbox.NewDispatcher(store, mailer, nil, logger.New(nil))
	res, err := d.RunOnce(context.Background())

	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 0, res.Sent)
	store.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestRunOnce_LastAttemptGivesUp(t *testing.T) {
	store := new(MockStore)
	mailer := new(MockMailer)
	store.On("PullPending", mock.Anything, outbox.DefaultBatchSize, emailOnly).Return([]models.OutboxMessage{
		emailMessage("m1", 0),
		emailMessage("m2", outbox.DefaultMaxAttempts-1),
	}, nil)
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("boom"))
	store.On("RecordFailure", mock.Anything, "m1", "boom", false).Return(nil).Once()
	store.On("RecordFailure", mock.Anything, "m2", "boom", true).Return(nil).Once()

	d := outbox.NewDispatcher(store, mailer, nil, logger.New(nil))
	res, err := d.RunOnce(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, outbox.Result{Retried: 1, Failed: 1}, res)
	store.AssertExpectations(t)
	mailer.AssertNumberOfCalls(t, "Send", 2)
}
