// Command outbox-dispatcher delivers queued emails and Kafka events. Run it
// when the API is started with OUTBOX_EMBEDDED=false.
package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ms-registration/internal/config"
	"ms-registration/internal/database"
	"ms-registration/internal/kafka"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/notify"
	"ms-registration/internal/outbox"
	outboxdb "ms-registration/internal/outbox/db"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Dir, "outbox-dispatcher")
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	var publisher outbox.Publisher
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID, log)
		defer producer.Close()
		publisher = producer
	} else {
		log.Warn("KAFKA", "Kafka disabled, events will stay queued")
	}

	store := &outboxdb.DB{Bun: bunDB}
	if counts, err := store.CountByStatus(ctx); err == nil {
		log.Info("OUTBOX", fmt.Sprintf("Queue on start: %d pending, %d failed", counts[models.OutboxStatusPending], counts[models.OutboxStatusFailed]))
	}

	d := outbox.NewDispatcher(store, notify.NewMailer(cfg.Email, log), publisher, log)
	d.BatchSize = cfg.Outbox.BatchSize
	d.MaxAttempts = cfg.Outbox.MaxAttempts
	if err := d.Run(ctx, cfg.Outbox.PollInterval); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("OUTBOX", err.Error())
	}
}
