package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"

	"rfqs/db"
	"rfqs/db/migrations"
	"rfqs/internal/award"
	"rfqs/internal/config"
	"rfqs/internal/handlers"
	"rfqs/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := cfg.Logger()

	dbConn, err := sqlx.Connect("postgres", cfg.PostgresConn)
	if err != nil {
		log.Fatalf("Cannot connect to DB: %v", err)
	}
	defer dbConn.Close()

	if err := migrations.Run(cfg.PostgresConn); err != nil {
		log.Fatalf("Migrations failed: %v", err)
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("rfq-api-server"))
	if err != nil {
		log.Fatalf("Cannot connect to NATS: %v", err)
	}
	defer nc.Close()

	publisher, err := award.NewNATSPublisher(nc, log)
	if err != nil {
		log.Fatalf("Cannot set up award event stream: %v", err)
	}

	store := db.NewStorage(dbConn)
	resolver := award.NewResolver(store, publisher, log, cfg.HoldTTL)
	h := handlers.NewHandler(store, resolver, log)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		// RFQ
		r.Post("/rfqs/new", h.CreateRFQHandler)
		r.Get("/rfqs", h.ListOpenRFQsHandler)
		r.Get("/rfqs/my", h.ListMyRFQsHandler)
		r.Get("/rfqs/{rfqId}", h.GetRFQHandler)
		r.Get("/rfqs/{rfqId}/responses", h.ListResponsesHandler)
		// ответы поставщиков
		r.Post("/rfqs/{rfqId}/respond", h.RespondHandler)
		// решения покупателя
		r.Put("/rfqs/{rfqId}/award", h.AwardHandler)
		r.Put("/rfqs/{rfqId}/release_hold", h.ReleaseHoldHandler)
		r.Put("/rfqs/{rfqId}/close", h.CloseRFQHandler)
		r.Put("/rfqs/{rfqId}/cancel", h.CancelRFQHandler)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sw := sweeper.New(store, log, cfg.SweepInterval, cfg.SweepBatch)
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sw.Run(ctx)
	}()

	srv := &http.Server{Addr: cfg.ServerAddress, Handler: r}
	go func() {
		log.Infof("Starting server on %s", cfg.ServerAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown: %v", err)
	}
	<-sweeperDone
}
