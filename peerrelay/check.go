// Package peerrelay coordinates the direct peer connection used by
// peer-to-peer relay flows: connection discovery, passive open checks, active
// latency probes and relay messaging over libp2p.
package peerrelay

// OpenConnection describes one currently open connection of the local peer
// node.
type OpenConnection struct {
	// RemotePeerID is the counterparty's peer identifier.
	RemotePeerID string

	// Open reports whether the connection is currently usable.
	Open bool
}

// ConnectionCheck is the result of a passive relay connection check.
type ConnectionCheck struct {
	Connected bool

	// LatencyMillis is always nil for passive checks: listing open
	// connections is not a round-trip measurement.
	LatencyMillis *int64
}

// CheckRelayConnectionOpen reports whether any open connection's remote peer
// is in the candidate relay set. It is pure and performs no I/O; an empty
// candidate set is never connected.
func CheckRelayConnectionOpen(conns []OpenConnection, candidateRelayPeerIDs []string) ConnectionCheck {
	if len(candidateRelayPeerIDs) == 0 {
		return ConnectionCheck{}
	}

	candidates := make(map[string]struct{}, len(candidateRelayPeerIDs))
	for _, id := range candidateRelayPeerIDs {
		candidates[id] = struct{}{}
	}

	for _, conn := range conns {
		if !conn.Open {
			continue
		}
		if _, ok := candidates[conn.RemotePeerID]; ok {
			return ConnectionCheck{Connected: true}
		}
	}
	return ConnectionCheck{}
}
