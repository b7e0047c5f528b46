package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves the coordinator's Prometheus registry over HTTP.
type MetricsServer struct {
	srv      *http.Server
	registry *prometheus.Registry
	recorder *Recorder
}

// New creates a metrics server with its own registry, standard process and Go
// runtime collectors, and a Recorder for coordinator metrics.
func New(namespace, listenAddr string) (*MetricsServer, error) {
	if listenAddr == "" {
		return nil, errors.New("metrics listen address is empty")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	recorder := NewRecorder(namespace, registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:    listenAddr,
			Handler: mux,
		},
		registry: registry,
		recorder: recorder,
	}, nil
}

// Recorder returns the coordinator metrics recorder backed by this server's
// registry.
func (s *MetricsServer) Recorder() *Recorder {
	return s.recorder
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
