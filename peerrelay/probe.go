package peerrelay

import (
	"context"
	"time"
)

// Pinger performs one round trip to a peer and reports how long it took.
type Pinger interface {
	Ping(ctx context.Context, peerID string) (time.Duration, error)
}

// PeerNode is the view of the local networking stack the coordinator needs:
// the currently open connections and, when available, a ping capability.
type PeerNode interface {
	OpenConnections() []OpenConnection

	// Pinger returns the node's ping capability, ok=false when the node does
	// not support probing.
	Pinger() (Pinger, bool)
}

// ProbeResult is the outcome of one active latency probe.
type ProbeResult struct {
	Connected     bool
	LatencyMillis *int64
}

// ProbePeerLatency performs an active round trip to a peer and measures the
// elapsed wall-clock time. Every way a probe can fail - unreachable peer,
// missing ping capability, probe error - uniformly yields a disconnected
// result; probe failures are never propagated as errors.
func ProbePeerLatency(ctx context.Context, node PeerNode, peerID string) ProbeResult {
	if node == nil || peerID == "" {
		return ProbeResult{}
	}

	pinger, ok := node.Pinger()
	if !ok {
		return ProbeResult{}
	}

	started := time.Now()
	if _, err := pinger.Ping(ctx, peerID); err != nil {
		return ProbeResult{}
	}

	latency := time.Since(started).Milliseconds()
	return ProbeResult{Connected: true, LatencyMillis: &latency}
}
