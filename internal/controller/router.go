package controller

import (
	"net/http"
	"time"

	paymentApp "github.com/cassiomorais/checkout/internal/application/payment"
	"github.com/cassiomorais/checkout/internal/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/cassiomorais/checkout/internal/domain/order"
	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/checkout/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	DB    Pinger
	Redis Pinger

	Orders         order.Repository
	ProcessPayment *paymentApp.ProcessPaymentUseCase
	ProcessRefund  *paymentApp.ProcessRefundUseCase
	EnqueueRefunds *paymentApp.EnqueueRefundsUseCase
	Idempotency    customMW.IdempotencyStore

	Fields      checkout.Settings
	Metrics     *observability.Metrics
	Gatherer    prometheus.Gatherer
	ServiceName string
	JWTSecret   string
	CORSConfig  config.CORSConfig
	RateLimit   config.RateLimitConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(deps.ServiceName))
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Idempotency-Replayed"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.DB, deps.Redis)
	orderH := NewOrderController(deps.Orders, deps.ProcessPayment, deps.ProcessRefund, deps.EnqueueRefunds)
	checkoutH := NewCheckoutController(deps.Fields)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/checkout/fields", checkoutH.Fields)

		// Orders (host platform stand-in)
		r.Post("/orders", orderH.Create)
		r.Get("/orders/{id}", orderH.Get)

		// Payment submission from the checkout page
		r.With(
			requireGateway(deps.Fields.Enabled),
			customMW.RateLimit(deps.RateLimit.Requests, deps.RateLimit.Window),
			customMW.Idempotency(deps.Idempotency),
		).Post("/orders/{id}/payment", orderH.SubmitPayment)

		// Store admin actions
		r.Group(func(r chi.Router) {
			r.Use(customMW.RequireRole(deps.JWTSecret, customMW.RoleAdmin))
			r.Use(requireGateway(deps.Fields.Enabled))
			r.Post("/orders/{id}/refunds", orderH.Refund)
			r.Post("/refunds/batch", orderH.BatchRefund)
		})
	})

	return r
}

// requireGateway answers 503 on gateway-backed routes while the gateway is switched off.
func requireGateway(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, domainErrors.ErrGatewayDisabled)
		})
	}
}
