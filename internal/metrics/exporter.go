package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exposes this package's metrics over HTTP on the configured
// address.
type Exporter struct {
	server *http.Server
}

// NewExporter builds (but does not start) an exporter bound to addr.
func NewExporter(addr string) *Exporter {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Exporter{server: &http.Server{Addr: addr, Handler: mux}}
}

// Start blocks serving /metrics until Stop is called or ListenAndServe
// fails.
func (e *Exporter) Start() error {
	return e.server.ListenAndServe()
}

// Stop shuts the exporter's HTTP server down gracefully.
func (e *Exporter) Stop(ctx context.Context) error {
	return e.server.Shutdown(ctx)
}
