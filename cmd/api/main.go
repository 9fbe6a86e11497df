package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/checkout/internal/bootstrap"
	"github.com/cassiomorais/checkout/internal/controller"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "checkout-api", "checkout")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	svc := app.Services()
	cfg := app.Config

	if !cfg.Gateway.Enabled {
		app.Logger.Warn().Msg("Payment gateway disabled; payment and refund routes will answer 503")
	}
	if cfg.Gateway.TestMode {
		app.Logger.Warn().Msg("Gateway test mode is on")
	}

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		DB:             app.Pool,
		Redis:          controller.PingerFunc(func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() }),
		Orders:         svc.Orders,
		ProcessPayment: svc.ProcessPayment,
		ProcessRefund:  svc.ProcessRefund,
		EnqueueRefunds: svc.EnqueueRefunds,
		Idempotency:    svc.Idempotency,
		Fields:         cfg.Gateway.FieldSettings(),
		Metrics:        app.Metrics,
		Gatherer:       app.Registry,
		ServiceName:    "checkout-api",
		JWTSecret:      cfg.Auth.JWTSecret,
		CORSConfig:     cfg.Server.CORS,
		RateLimit:      cfg.Server.RateLimit,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
