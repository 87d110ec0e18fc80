package db

import (
	"context"
	"time"

	"ms-registration/internal/database"
	"ms-registration/internal/models"

	"github.com/uptrace/bun"
)

// DB stores outbox messages. Bun may be a *bun.DB or a bun.Tx, so Enqueue
// joins whatever transaction the caller is in.
type DB struct {
	Bun bun.IDB
}

func (d *DB) Enqueue(ctx context.Context, msgs ...*models.OutboxMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	_, err := d.Bun.NewInsert().Model(&msgs).Exec(ctx)
	return database.MapError(err)
}

// PullPending returns up to limit pending messages, oldest first. When kinds
// is given only messages of those kinds are returned.
func (d *DB) PullPending(ctx context.Context, limit int, kinds ...models.OutboxKind) ([]models.OutboxMessage, error) {
	var msgs []models.OutboxMessage
	q := d.Bun.NewSelect().
		Model(&msgs).
		Where("status = ?", models.OutboxStatusPending)
	if len(kinds) > 0 {
		q = q.Where("kind IN (?)", bun.In(kinds))
	}
	err := q.Order("created_at ASC", "id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, database.MapError(err)
	}
	return msgs, nil
}

func (d *DB) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.OutboxMessage)(nil)).
		Set("status = ?", models.OutboxStatusSent).
		Set("attempts = attempts + 1").
		Set("sent_at = ?", at).
		Set("last_error = ?", "").
		Where("id = ?", id).
		Exec(ctx)
	return database.MapError(err)
}

// RecordFailure counts a failed attempt. When giveUp is set the message is
// marked failed and no longer pulled.
func (d *DB) RecordFailure(ctx context.Context, id string, lastError string, giveUp bool) error {
	status := models.OutboxStatusPending
	if giveUp {
		status = models.OutboxStatusFailed
	}
	_, err := d.Bun.NewUpdate().
		Model((*models.OutboxMessage)(nil)).
		Set("status = ?", status).
		Set("attempts = attempts + 1").
		Set("last_error = ?", lastError).
		Where("id = ?", id).
		Exec(ctx)
	return database.MapError(err)
}

// ListByKind returns all messages of one kind, oldest first.
func (d *DB) ListByKind(ctx context.Context, kind models.OutboxKind) ([]models.OutboxMessage, error) {
	var msgs []models.OutboxMessage
	err := d.Bun.NewSelect().
		Model(&msgs).
		Where("kind = ?", kind).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, database.MapError(err)
	}
	return msgs, nil
}

// CountByStatus reports the backlog per status.
func (d *DB) CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	var rows []struct {
		Status models.OutboxStatus `bun:"status"`
		N      int                 `bun:"n"`
	}
	err := d.Bun.NewSelect().
		Model((*models.OutboxMessage)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS n").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, database.MapError(err)
	}
	out := make(map[models.OutboxStatus]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
