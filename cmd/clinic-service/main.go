package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/medflow/medflow-clinic/internal/clinic/consumers"
	"github.com/medflow/medflow-clinic/internal/clinic/events"
	"github.com/medflow/medflow-clinic/internal/clinic/handler"
	"github.com/medflow/medflow-clinic/internal/clinic/repository"
	"github.com/medflow/medflow-clinic/internal/clinic/service"
	"github.com/medflow/medflow-clinic/internal/migrations"
	"github.com/medflow/medflow-clinic/pkg/auth"
	"github.com/medflow/medflow-clinic/pkg/config"
	"github.com/medflow/medflow-clinic/pkg/database"
	"github.com/medflow/medflow-clinic/pkg/httputil"
	"github.com/medflow/medflow-clinic/pkg/logger"
	"github.com/medflow/medflow-clinic/pkg/messaging"
)

const serviceName = "clinic-service"

func main() {
	// Fails fast in production when required config is missing
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Clinic Service")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.MigrateOnStart {
		runner, err := migrations.NewRunner(db.DB, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load migrations")
		}
		applied, err := runner.Up(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
		log.Info().Ints("versions", applied).Msg("migrations up to date")
	}

	httputil.SetNationalIDLength(cfg.Clinic.NationalIDMinDigits, cfg.Clinic.NationalIDMaxDigits)

	// The broker is optional outside production: without it events are dropped
	// and the audit trail stays empty.
	var publisher *events.ClinicEventPublisher
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		if cfg.Server.IsProductionLike() {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		log.Warn().Err(err).Msg("RabbitMQ unavailable, events will not be published")
		publisher = events.NewWithPublisher(messaging.NopPublisher{}, log)
	} else {
		defer rmq.Close()
		publisher, err = events.NewClinicEventPublisher(rmq, cfg.RabbitMQ.Exchange, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
			log.Fatal().Err(err).Msg("failed to declare dead letter queue")
		}
	}

	repos := repository.New(db)

	journeySvc := service.NewJourneyService(db, repos, publisher, cfg.Clinic, log)
	svc := handler.Services{
		Journey:   journeySvc,
		Orders:    service.NewOrderService(db, repos, journeySvc, publisher, log),
		Billing:   service.NewBillingService(db, repos, journeySvc, publisher, cfg.Clinic, log),
		Inventory: service.NewInventoryService(db, repos, publisher, log),
		Audit:     service.NewAuditService(repos.Audit, log),
	}

	if rmq != nil {
		auditConsumer, err := consumers.NewAuditEventConsumer(rmq, cfg.RabbitMQ.Exchange, svc.Audit, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create audit event consumer")
		}
		if err := auditConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start audit event consumer")
		}
		go rmq.Watch(ctx)
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, status)
	})

	tokens := auth.NewManager(&cfg.JWT)

	r.Route("/api/v1/clinic", func(r chi.Router) {
		r.Use(httputil.Authenticate(tokens, log))
		handler.Mount(r, svc, log)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Stops the audit consumer and the reconnect watcher
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
