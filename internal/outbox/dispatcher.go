package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

type Mailer interface {
	Send(ctx context.Context, subject, body, toAddr string) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

type Store interface {
	PullPending(ctx context.Context, limit int, kinds ...models.OutboxKind) ([]models.OutboxMessage, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, lastError string, giveUp bool) error
}

const (
	DefaultBatchSize   = 50
	DefaultMaxAttempts = 10
)

var ErrNoPublisher = errors.New("no event publisher configured")

type Dispatcher struct {
	store       Store
	mailer      Mailer
	publisher   Publisher
	log         *logger.Logger
	BatchSize   int
	MaxAttempts int
	now         func() time.Time
}

// NewDispatcher wires the dispatcher. publisher may be nil when Kafka is
// disabled; events are then not pulled at all and stay pending, without
// using up attempts, until a dispatcher with a publisher runs.
func NewDispatcher(store Store, mailer Mailer, publisher Publisher, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:       store,
		mailer:      mailer,
		publisher:   publisher,
		log:         log,
		BatchSize:   DefaultBatchSize,
		MaxAttempts: DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Result summarises one dispatch pass.
type Result struct {
	Sent    int
	Retried int
	Failed  int
}

// RunOnce delivers one batch of pending messages.
func (d *Dispatcher) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	msgs, err := d.store.PullPending(ctx, d.BatchSize, d.deliverable()...)
	if err != nil {
		return res, fmt.Errorf("pull pending outbox messages: %w", err)
	}

	for i := range msgs {
		msg := &msgs[i]
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		sendErr := d.deliver(ctx, msg)
		if sendErr == nil {
			if err := d.store.MarkSent(ctx, msg.ID, d.now()); err != nil {
				return res, fmt.Errorf("mark outbox message %s sent: %w", msg.ID, err)
			}
			d.log.LogOutbox("SENT", msg.ID, describe(msg))
			res.Sent++
			continue
		}

		giveUp := msg.Attempts+1 >= d.MaxAttempts
		if err := d.store.RecordFailure(ctx, msg.ID, sendErr.Error(), giveUp); err != nil {
			return res, fmt.Errorf("record outbox failure for %s: %w", msg.ID, err)
		}
		if giveUp {
			d.log.Error("OUTBOX", fmt.Sprintf("Giving up on %s (%s) after %d attempts: %v", msg.ID, describe(msg), msg.Attempts+1, sendErr))
			res.Failed++
		} else {
			d.log.Warn("OUTBOX", fmt.Sprintf("Delivery of %s (%s) failed, will retry: %v", msg.ID, describe(msg), sendErr))
			res.Retried++
		}
	}

	return res, nil
}

// deliverable is the set of kinds this dispatcher can send, or nil for all.
func (d *Dispatcher) deliverable() []models.OutboxKind {
	if d.publisher == nil {
		return []models.OutboxKind{models.OutboxKindEmail}
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg *models.OutboxMessage) error {
	switch msg.Kind {
	case models.OutboxKindEmail:
		return d.mailer.Send(ctx, msg.Subject, msg.Body, msg.ToAddr)
	case models.OutboxKindEvent:
		if d.publisher == nil {
			return ErrNoPublisher
		}
		return d.publisher.Publish(ctx, msg.Topic, msg.Key, []byte(msg.Payload))
	default:
		return fmt.Errorf("unknown outbox message kind %q", msg.Kind)
	}
}

// Run polls every interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.log.Info("OUTBOX", fmt.Sprintf("Dispatcher started, polling every %s", interval))
	for {
		res, err := d.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error("OUTBOX", fmt.Sprintf("Dispatch pass failed: %v", err))
		} else if res.Sent+res.Retried+res.Failed > 0 {
			d.log.Info("OUTBOX", fmt.Sprintf("Dispatched: %d sent, %d retried, %d failed", res.Sent, res.Retried, res.Failed))
		}

		select {
		case <-ctx.Done():
			d.log.Info("OUTBOX", "Dispatcher stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func describe(msg *models.OutboxMessage) string {
	if msg.Kind == models.OutboxKindEmail {
		return fmt.Sprintf("email to %s", msg.ToAddr)
	}
	return fmt.Sprintf("event on %s", msg.Topic)
}
