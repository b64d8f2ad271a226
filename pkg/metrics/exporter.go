package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pg-sharding/partmig/pkg/migrlog"
)

// Exporter exposes metrics via HTTP
type Exporter struct {
	server *http.Server
}

func NewExporter(addr string) *Exporter {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Exporter{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start serves until Stop is called.
func (e *Exporter) Start() error {
	migrlog.Zero.Info().Str("address", e.server.Addr).Msg("metrics: serving /metrics")
	if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (e *Exporter) Stop(ctx context.Context) error {
	return e.server.Shutdown(ctx)
}
