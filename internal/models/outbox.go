package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OutboxKind string

const (
	OutboxKindEmail OutboxKind = "email"
	OutboxKindEvent OutboxKind = "event"
)

type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// OutboxMessage is a notification written in the same transaction as the
// state change it reports, and delivered later by the dispatcher.
type OutboxMessage struct {
	bun.BaseModel `bun:"table:outbox_messages,alias:om"`

	ID        string       `bun:"id,pk"`
	Kind      OutboxKind   `bun:"kind,notnull"`
	Topic     string       `bun:"topic"`
	Key       string       `bun:"key"`
	Subject   string       `bun:"subject"`
	Body      string       `bun:"body"`
	ToAddr    string       `bun:"to_addr"`
	Payload   string       `bun:"payload"`
	Status    OutboxStatus `bun:"status,notnull"`
	Attempts  int          `bun:"attempts,notnull"`
	LastError string       `bun:"last_error"`
	CreatedAt time.Time    `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	SentAt    *time.Time   `bun:"sent_at"`
}
