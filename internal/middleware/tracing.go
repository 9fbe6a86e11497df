package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request. The span is renamed to the matched
// chi route once routing has run, e.g. "POST /api/v1/orders/{id}/payment".
func Tracing(service string, opts ...otelhttp.Option) func(http.Handler) http.Handler {
	opts = append([]otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	}, opts...)

	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if p := routePattern(r); p != "unmatched" {
				trace.SpanFromContext(r.Context()).SetName(r.Method + " " + p)
			}
		})
		return otelhttp.NewHandler(named, service, opts...)
	}
}
