package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/lyzr/materials/common/logger"
	"github.com/lyzr/materials/common/metrics"
)

// Telemetry serves pprof and Prometheus metrics on side ports
type Telemetry struct {
	log         *logger.Logger
	metrics     *metrics.Metrics
	pprofAddr   string
	metricsAddr string
	servers     []*http.Server
}

// New creates telemetry components. An empty address disables that server.
func New(pprofAddr, metricsAddr string, m *metrics.Metrics, log *logger.Logger) *Telemetry {
	return &Telemetry{
		log:         log,
		metrics:     m,
		pprofAddr:   pprofAddr,
		metricsAddr: metricsAddr,
	}
}

// Addr formats a localhost listen address, or "" when disabled
func Addr(enabled bool, port int) string {
	if !enabled {
		return ""
	}
	return fmt.Sprintf("localhost:%d", port)
}

// Start starts the telemetry endpoints in the background
func (t *Telemetry) Start(ctx context.Context) error {
	if t.pprofAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		t.serve("pprof", t.pprofAddr, mux)
	}

	if t.metricsAddr != "" && t.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", t.metrics.Handler())
		t.serve("metrics", t.metricsAddr, mux)
	}

	return nil
}

func (t *Telemetry) serve(name, addr string, handler http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	t.servers = append(t.servers, srv)

	go func() {
		t.log.Info(name+" server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error(name+" server error", "error", err)
		}
	}()
}

// Shutdown stops the telemetry servers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range t.servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
