package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"

	"ms-registration/internal/analytics"
	analytics_api "ms-registration/internal/analytics/api"
	"ms-registration/internal/auth"
	"ms-registration/internal/config"
	"ms-registration/internal/database"
	"ms-registration/internal/database/migrations"
	"ms-registration/internal/kafka"
	"ms-registration/internal/logger"
	"ms-registration/internal/notify"
	"ms-registration/internal/order"
	orderdb "ms-registration/internal/order/db"
	"ms-registration/internal/order/order_api"
	orderredis "ms-registration/internal/order/redis"
	"ms-registration/internal/outbox"
	outboxdb "ms-registration/internal/outbox/db"
	"ms-registration/internal/payment"
	ticketdb "ms-registration/internal/tickets/db"
	tickets "ms-registration/internal/tickets/service"
	"ms-registration/internal/tickets/ticket_api"
	"ms-registration/internal/utils"
)

func connectRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Client, order.ChargeGuard) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis unavailable at %s, payments run without the charge guard: %v", cfg.Redis.Addr, err))
		client.Close()
		return nil, nil
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))
	return client, orderredis.NewChargeGuard(client, cfg.Redis.ChargeGuardTTL, log)
}

func newGateway(cfg *config.Config, log *logger.Logger) (payment.Gateway, error) {
	if cfg.Stripe.MockMode {
		log.Warn("PAYMENT", "STRIPE_MOCK_MODE set, no real charges will be made")
		return payment.NewMockGateway(), nil
	}
	return payment.NewStripeGateway(cfg.Stripe.SecretKey, log)
}

func migrate(bunDB *bun.DB, cfg *config.Config, log *logger.Logger) error {
	if !database.IsPostgres(bunDB) || !cfg.Database.AutoMigrate {
		return nil
	}
	runner := migrations.NewRunner(bunDB, migrations.Options{MigrationsDir: cfg.Database.MigrationsDir}, log)
	return runner.MigrateUp()
}

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log := logger.NewLogger(cfg.Log.Dir, "ms-registration")
	defer log.Close()
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))

	log.Info("APP", "Starting Registration Service initialization")
	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if err := migrate(bunDB, cfg, log); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}

	redisClient, guard := connectRedis(ctx, cfg, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	gateway, err := newGateway(cfg, log)
	if err != nil {
		log.Fatal("PAYMENT", err.Error())
	}

	verifier, err := auth.NewVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.JWTSecret)
	if err != nil {
		log.Fatal("AUTH", err.Error())
	}

	ticketService := tickets.NewTicketService(&ticketdb.DB{Bun: bunDB}, tickets.Config{
		Conference: cfg.Conference.Name,
		Domain:     cfg.Conference.Domain,
	}, log)
	orderService := order.NewOrderService(orderdb.New(bunDB), ticketService, gateway, guard, order.ConfigFrom(cfg), log)

	orderHandler := order_api.NewHandler(orderService, log)
	ticketHandler := ticket_api.NewHandler(ticketService, cfg.QRSecret, log)
	analyticsHandler := analytics_api.NewHandler(analytics.NewService(analytics.NewDB(bunDB)), log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(log.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := bunDB.PingContext(r.Context()); err != nil {
			order_api.WriteJSON(w, log, http.StatusServiceUnavailable, utils.ErrorResponse("unhealthy", "unavailable", "database unreachable"))
			return
		}
		order_api.WriteJSON(w, log, http.StatusOK, utils.SuccessResponse("ok", nil))
	})

	r.Route("/api", func(r chi.Router) {
		ticketHandler.PublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier, log))
			log.Info("AUTH", "Token middleware applied to protected API routes")

			orderHandler.Routes(r)
			ticketHandler.Routes(r)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin(cfg.Auth.AdminSubs))
				orderHandler.AdminRoutes(r)
				ticketHandler.AdminRoutes(r)
				analyticsHandler.RegisterRoutes(r)
			})
			log.Info("ROUTER", "Order, ticket, admin and report routes registered under /api")
		})
	})

	if cfg.Outbox.Embedded {
		go runDispatcher(ctx, bunDB, cfg, log)
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Registration Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Registration Service shutdown complete")
	}
}

// runDispatcher delivers queued emails and events until ctx is cancelled.
func runDispatcher(ctx context.Context, bunDB *bun.DB, cfg *config.Config, log *logger.Logger) {
	var publisher outbox.Publisher
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID, log)
		defer producer.Close()
		publisher = producer
	} else {
		log.Warn("KAFKA", "Kafka disabled, events will stay queued")
	}

	d := outbox.NewDispatcher(&outboxdb.DB{Bun: bunDB}, notify.NewMailer(cfg.Email, log), publisher, log)
	d.BatchSize = cfg.Outbox.BatchSize
	d.MaxAttempts = cfg.Outbox.MaxAttempts
	if err := d.Run(ctx, cfg.Outbox.PollInterval); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("OUTBOX", fmt.Sprintf("Dispatcher exited: %v", err))
	}
}
