package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures the coordinator's HTTP front: the session API
// listener, the optional metrics listener and the shutdown behavior.
type HTTPServerConfig struct {
	// ListenAddr is the address the session API listens on.
	ListenAddr string

	// MetricsAddr is the address of the Prometheus metrics listener. Empty
	// disables metrics serving.
	MetricsAddr string

	// EnablePprof mounts the pprof API under /debug when true.
	EnablePprof bool

	// Log is the structured logger shared by the server and its handlers.
	Log *slog.Logger

	// DrainDuration is how long the server stays up after /drain flips
	// readiness, giving load balancers time to notice.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds the wait for in-flight requests on
	// shutdown.
	GracefulShutdownDuration time.Duration

	// ReadTimeout bounds reading one request including its body.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration
}
