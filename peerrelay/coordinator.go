package peerrelay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
	"github.com/stolen-wallet-registry/registry-coordinator/metrics"
)

// NetworkEventType classifies networking-layer notifications.
type NetworkEventType string

const (
	// PeerConnected reports a newly opened connection.
	PeerConnected NetworkEventType = "connected"

	// PeerDisconnected reports a closed connection.
	PeerDisconnected NetworkEventType = "disconnected"
)

// NetworkEvent is one notification from the networking layer.
type NetworkEvent struct {
	Type   NetworkEventType
	PeerID string
}

// Coordinator owns the relay connection state of every attached session. It
// is the single writer of that state: networking events and explicit health
// checks fold into it here, and everyone else reads snapshots. The state
// machine never subscribes to raw events.
type Coordinator struct {
	node     PeerNode
	events   <-chan NetworkEvent
	recorder *metrics.Recorder
	log      *slog.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]*interfaces.PeerConnection
}

// NewCoordinator creates a coordinator folding events from the networking
// layer. The recorder may be nil.
func NewCoordinator(node PeerNode, events <-chan NetworkEvent, recorder *metrics.Recorder, log *slog.Logger) *Coordinator {
	return &Coordinator{
		node:     node,
		events:   events,
		recorder: recorder,
		log:      log,
		conns:    make(map[uuid.UUID]*interfaces.PeerConnection),
	}
}

// probeInterval is the cadence of the periodic latency probes.
const probeInterval = 30 * time.Second

// Run consumes networking events and keeps measured latencies fresh until the
// context ends.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			c.fold(ev)
		case <-ticker.C:
			c.probeConnected(ctx)
		}
	}
}

// probeConnected re-measures the latency of every connected session link.
func (c *Coordinator) probeConnected(ctx context.Context) {
	c.mu.Lock()
	ids := make([]uuid.UUID, 0, len(c.conns))
	for id, conn := range c.conns {
		if conn.Status == interfaces.ConnectionConnected {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		c.HealthCheck(probeCtx, id)
		cancel()
	}
}

// Attach starts tracking a session's relay connection. The current open
// connections are folded in immediately so a link opened before attachment is
// not missed.
func (c *Coordinator) Attach(sessionID uuid.UUID, role interfaces.ParticipantRole, relayPeerIDs []string) {
	conn := &interfaces.PeerConnection{
		LocalRole:    role,
		RelayPeerIDs: append([]string(nil), relayPeerIDs...),
		Status:       interfaces.ConnectionDisconnected,
	}
	if len(relayPeerIDs) > 0 {
		conn.Status = interfaces.ConnectionConnecting
	}

	if c.node != nil {
		check := CheckRelayConnectionOpen(c.node.OpenConnections(), relayPeerIDs)
		if check.Connected {
			conn.Status = interfaces.ConnectionConnected
			conn.RemotePeerID = c.openCandidate(relayPeerIDs)
		}
	}

	c.mu.Lock()
	c.conns[sessionID] = conn
	c.mu.Unlock()
	c.updateGauge()

	c.log.Debug("Relay connection attached", "sessionID", sessionID, "role", string(role), "candidates", len(relayPeerIDs))
}

// Snapshot returns a copy of a session's connection state.
func (c *Coordinator) Snapshot(sessionID uuid.UUID) (interfaces.PeerConnection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, ok := c.conns[sessionID]
	if !ok {
		return interfaces.PeerConnection{}, false
	}

	out := *conn
	out.RelayPeerIDs = append([]string(nil), conn.RelayPeerIDs...)
	if conn.LatencyMillis != nil {
		latency := *conn.LatencyMillis
		out.LatencyMillis = &latency
	}
	return out, true
}

// Detach discards a session's connection state.
func (c *Coordinator) Detach(sessionID uuid.UUID) {
	c.mu.Lock()
	delete(c.conns, sessionID)
	c.mu.Unlock()
	c.updateGauge()
}

// HealthCheck actively probes a session's counterparty and folds the measured
// latency into its connection state. With no counterparty known yet it probes
// the first candidate relay peer instead.
func (c *Coordinator) HealthCheck(ctx context.Context, sessionID uuid.UUID) ProbeResult {
	c.mu.Lock()
	conn, ok := c.conns[sessionID]
	var target string
	if ok {
		target = conn.RemotePeerID
		if target == "" && len(conn.RelayPeerIDs) > 0 {
			target = conn.RelayPeerIDs[0]
		}
	}
	c.mu.Unlock()
	if !ok || target == "" {
		return ProbeResult{}
	}

	result := ProbePeerLatency(ctx, c.node, target)
	if c.recorder != nil {
		outcome := "unreachable"
		if result.Connected {
			outcome = "ok"
		}
		c.recorder.ObservePeerProbe(outcome)
	}

	c.mu.Lock()
	if conn, ok := c.conns[sessionID]; ok {
		if result.Connected {
			conn.Status = interfaces.ConnectionConnected
			conn.RemotePeerID = target
			conn.LatencyMillis = result.LatencyMillis
		} else {
			conn.LatencyMillis = nil
		}
	}
	c.mu.Unlock()
	c.updateGauge()

	return result
}

// fold applies one networking event to every attached session that watches
// the affected peer.
func (c *Coordinator) fold(ev NetworkEvent) {
	c.mu.Lock()
	for sessionID, conn := range c.conns {
		if !watchesPeer(conn, ev.PeerID) {
			continue
		}
		switch ev.Type {
		case PeerConnected:
			conn.Status = interfaces.ConnectionConnected
			conn.RemotePeerID = ev.PeerID
			c.log.Info("Relay peer connected", "sessionID", sessionID, "peerID", ev.PeerID)
		case PeerDisconnected:
			conn.Status = interfaces.ConnectionDisconnected
			conn.LatencyMillis = nil
			c.log.Info("Relay peer disconnected", "sessionID", sessionID, "peerID", ev.PeerID)
		}
	}
	c.mu.Unlock()
	c.updateGauge()
}

// watchesPeer reports whether a connection cares about a peer: its known
// counterparty or any candidate relay.
func watchesPeer(conn *interfaces.PeerConnection, peerID string) bool {
	if conn.RemotePeerID == peerID {
		return true
	}
	for _, candidate := range conn.RelayPeerIDs {
		if candidate == peerID {
			return true
		}
	}
	return false
}

// openCandidate returns the first candidate with an open connection.
func (c *Coordinator) openCandidate(candidates []string) string {
	open := c.node.OpenConnections()
	for _, candidate := range candidates {
		for _, conn := range open {
			if conn.Open && conn.RemotePeerID == candidate {
				return candidate
			}
		}
	}
	return ""
}

func (c *Coordinator) updateGauge() {
	if c.recorder == nil {
		return
	}

	c.mu.Lock()
	count := 0
	for _, conn := range c.conns {
		if conn.Status == interfaces.ConnectionConnected {
			count++
		}
	}
	c.mu.Unlock()
	c.recorder.SetPeerConnections(count)
}
