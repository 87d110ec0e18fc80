// Command migrate manages the registration schema.
//
//	migrate up | down [N] | version | goto N | force N | seed EMAIL...
//
// seed issues a free ticket invitation to each address, which is handy for
// trying the claim flow against a fresh database.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"ms-registration/internal/config"
	"ms-registration/internal/database"
	"ms-registration/internal/database/migrations"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	ticketdb "ms-registration/internal/tickets/db"
	tickets "ms-registration/internal/tickets/service"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate up | down [N] | version | goto N | force N | seed EMAIL...")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.New(os.Stdout)
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))
	ctx := context.Background()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.Options{MigrationsDir: cfg.Database.MigrationsDir}, log)
	defer runner.Close()

	postgresOnly := func() {
		if !database.IsPostgres(bunDB) {
			log.Fatal("MIGRATE", "SQL migrations only apply to postgres; sqlite schemas are created on open")
		}
	}

	switch cmd := os.Args[1]; cmd {
	case "up":
		postgresOnly()
		err = runner.MigrateUp()
	case "down":
		postgresOnly()
		steps := 0
		if len(os.Args) == 3 {
			if steps, err = strconv.Atoi(os.Args[2]); err != nil {
				usage()
			}
		}
		err = runner.MigrateDown(steps)
	case "goto", "force":
		postgresOnly()
		if len(os.Args) != 3 {
			usage()
		}
		var v uint64
		if v, err = strconv.ParseUint(os.Args[2], 10, 32); err != nil {
			usage()
		}
		if cmd == "goto" {
			err = runner.MigrateTo(uint(v))
		} else {
			err = runner.Force(int(v))
		}
	case "version":
		postgresOnly()
		version, dirty, verr := runner.Version()
		if verr == nil {
			log.Info("MIGRATE", fmt.Sprintf("Schema version %d (dirty: %t)", version, dirty))
		}
		err = verr
	case "seed":
		err = seed(ctx, cfg, log, database.IsPostgres(bunDB), &ticketdb.DB{Bun: bunDB}, os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
	log.Info("MIGRATE", "✅ Done.")
}

func seed(ctx context.Context, cfg *config.Config, log *logger.Logger, postgres bool, db *ticketdb.DB, emails []string) error {
	if postgres {
		log.Info("MIGRATE", "Seeding postgres; run 'migrate up' first if the schema is missing")
	}
	svc := tickets.NewTicketService(db, tickets.Config{Conference: cfg.Conference.Name, Domain: cfg.Conference.Domain}, log)
	for _, addr := range emails {
		_, inv, err := svc.CreateFreeTicket(ctx, addr, "seed", models.DayKeys)
		if errors.Is(err, tickets.ErrAlreadyInvited) {
			log.Warn("MIGRATE", fmt.Sprintf("%s already has an invitation", addr))
			continue
		}
		if err != nil {
			return err
		}
		log.Info("MIGRATE", fmt.Sprintf("Invited %s: %s", addr, svc.ClaimURL(inv.Token)))
	}
	return nil
}
