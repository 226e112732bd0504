package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/UsmanShaikh24/pharmalink/internal/auth"
	"github.com/UsmanShaikh24/pharmalink/internal/catalog"
	"github.com/UsmanShaikh24/pharmalink/internal/config"
	"github.com/UsmanShaikh24/pharmalink/internal/db"
	"github.com/UsmanShaikh24/pharmalink/internal/handler"
	"github.com/UsmanShaikh24/pharmalink/internal/orders"
	"github.com/UsmanShaikh24/pharmalink/internal/reservation"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "pharmalink").Logger()

	log.Info().Msg("Pharmalink order service starting...")

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	dbConn, err := db.New(cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbConn.Close()

	medicineRepo := catalog.NewRepository(dbConn.Pool)
	orderRepo := orders.NewRepository(dbConn.Pool)

	coordinator := reservation.NewCoordinator(medicineRepo)

	medicineSvc := catalog.NewService(medicineRepo)
	orderSvc := orders.NewService(orderRepo, medicineSvc, coordinator)

	medicineHandler := handler.NewMedicineHandler(medicineSvc)
	orderHandler := handler.NewOrderHandler(orderSvc)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		orderHandler.RegisterRoutes(r)
		medicineHandler.RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
