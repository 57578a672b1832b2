// Package metrics exposes Prometheus counters for ingestion and trading.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "argo_perp_ticks_total", Help: "Trade ticks folded into bars"},
		[]string{"symbol"},
	)
	LateTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "argo_perp_late_ticks_total", Help: "Ticks dropped because their bucket was already flushed"},
		[]string{"symbol"},
	)
	BarsFlushedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "argo_perp_bars_flushed_total", Help: "Bars written to the store"},
		[]string{"symbol"},
	)
	ReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "argo_perp_stream_reconnects_total", Help: "Trade stream reconnects"},
		[]string{"symbol"},
	)
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "argo_perp_evaluations_total", Help: "Symbol evaluations by outcome phase"},
		[]string{"phase"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "argo_perp_orders_total", Help: "Orders submitted"},
		[]string{"symbol", "action", "side"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "argo_perp_open_positions", Help: "Open positions seen at the last loop iteration"},
	)
	UniverseSize = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "argo_perp_universe_size", Help: "Symbols in the current universe snapshot"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		LateTicksTotal,
		BarsFlushedTotal,
		ReconnectsTotal,
		EvaluationsTotal,
		OrdersTotal,
		OpenPositions,
		UniverseSize,
	)
}

// Handler returns the router serving /metrics and /healthz.
func Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return r
}

// Serve runs the metrics server on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}

		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}
