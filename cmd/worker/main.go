package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/checkout/internal/bootstrap"
	infraRedis "github.com/cassiomorais/checkout/internal/infrastructure/redis"
	"github.com/cassiomorais/checkout/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "checkout-worker", "checkout_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	svc := app.Services()
	workerCfg := app.Config.Worker

	// --- Refund stream consumer ---
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.RefundStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group")
		os.Exit(1)
	}

	refunds := worker.NewRefundWorker(
		consumer,
		svc.RefundProducer,
		svc.ProcessRefund,
		func(key string) worker.Locker {
			return infraRedis.NewDistributedLock(app.Redis, key, workerCfg.LockTTL)
		},
		app.Metrics,
		app.Logger.With().Str("component", "refund-worker").Logger(),
		worker.Config{RefundTimeout: workerCfg.RefundTimeout},
	)

	app.Logger.Info().
		Str("stream", infraRedis.RefundStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started, listening for refunds...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Refund processor (reads from Redis Streams).
	g.Go(func() error {
		return refunds.Run(gCtx)
	})

	// 2. Takes over refunds left pending by a crashed consumer.
	g.Go(func() error {
		return refunds.RunReclaimer(gCtx, workerCfg.LockTTL)
	})

	// 3. Expired idempotency keys.
	g.Go(func() error {
		return worker.RunCleanup(gCtx, svc.Idempotency, workerCfg.CleanupEvery, app.Logger)
	})

	// 4. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
