package bootstrap

import (
	"context"
	"fmt"
	"os"

	paymentApp "github.com/cassiomorais/checkout/internal/application/payment"
	"github.com/cassiomorais/checkout/internal/gateway"
	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/checkout/internal/infrastructure/redis"
	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	tracer   *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Msg("Starting")

	var tp *sdktrace.TracerProvider
	if cfg.Observability.EnableTracing {
		tp, err = observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			logger.Info().Msg("Tracing enabled")
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(metricsNamespace, reg)
	logger.Info().Msg("Metrics initialized")

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return &App{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Redis:    redisClient,
		Metrics:  metrics,
		Registry: reg,
		tracer:   tp,
	}, nil
}

// Services is the payment stack shared by the API and the refund worker.
type Services struct {
	Orders         *postgres.OrderRepository
	Idempotency    *postgres.IdempotencyRepository
	Gateway        *gateway.BreakerClient
	Orchestrator   *paymentApp.Orchestrator
	ProcessPayment *paymentApp.ProcessPaymentUseCase
	ProcessRefund  *paymentApp.ProcessRefundUseCase
	EnqueueRefunds *paymentApp.EnqueueRefundsUseCase
	RefundProducer *infraRedis.RefundProducer
}

// Services builds the gateway client, orchestrator and use cases from config.
func (a *App) Services() *Services {
	gw := a.Config.Gateway

	breakers := gw.BreakerSettings()
	breakers.OnStateChange = func(op string, from, to gobreaker.State) {
		a.Logger.Warn().Str("operation", op).Str("from", from.String()).Str("to", to.String()).Msg("gateway circuit breaker state changed")
		a.Metrics.RecordBreakerState(op, from, to)
	}
	client := gateway.NewBreakerClient(gateway.NewHTTPClient(gw.ClientSettings()), breakers)

	orders := postgres.NewOrderRepository(a.Pool, postgres.NewTxManager(a.Pool))
	orch := paymentApp.NewOrchestrator(client, orders,
		paymentApp.WithLogger(a.Logger.With().Str("component", "orchestrator").Logger()),
		paymentApp.WithMetrics(a.Metrics),
		paymentApp.WithTracer(observability.Tracer("checkout/orchestrator")),
		paymentApp.WithReversalRetry(gw.ReversalRetry()),
		paymentApp.WithCompensationTimeout(gw.CompensationTimeout),
	)
	producer := infraRedis.NewRefundProducer(a.Redis)

	return &Services{
		Orders:         orders,
		Idempotency:    postgres.NewIdempotencyRepository(a.Pool, a.Config.Worker.IdempotencyTTL),
		Gateway:        client,
		Orchestrator:   orch,
		ProcessPayment: paymentApp.NewProcessPaymentUseCase(orders, orch, gw.TestMode, a.Config.Checkout.ReturnURL, a.Logger),
		ProcessRefund:  paymentApp.NewProcessRefundUseCase(orders, orch, gw.TestMode),
		EnqueueRefunds: paymentApp.NewEnqueueRefundsUseCase(producer),
		RefundProducer: producer,
	}
}

func (a *App) Close() {
	if err := observability.ShutdownTracer(context.Background(), a.tracer); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to flush traces")
	}
	a.Redis.Close()
	a.Pool.Close()
}
