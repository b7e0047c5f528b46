package peerrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

// ProtocolID identifies the relay messaging protocol between registeree and
// relayer.
const ProtocolID = "/swr/relay/1.0.0"

// Envelope message types exchanged over the relay link.
const (
	// MsgSignatureCompleted carries a signed payload from the registeree to
	// the relayer.
	MsgSignatureCompleted = "signature-completed"

	// MsgPaymentSubmitted reports a transaction submission from the relayer
	// back to the registeree.
	MsgPaymentSubmitted = "payment-submitted"
)

// maxEnvelopeSize bounds one relay message on the wire.
const maxEnvelopeSize = 64 * 1024

// inboxLimit bounds how many undelivered envelopes are retained.
const inboxLimit = 128

// Envelope is one relay message. Payload stays opaque to the transport; both
// sides agree on its shape per message type.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionID"`
	ChainID   uint64          `json:"chainID"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SentAt    time.Time       `json:"sentAt"`
}

// StreamOpener opens an outbound stream to a peer for a protocol.
type StreamOpener interface {
	OpenStream(ctx context.Context, peerID string, protocolID string) (io.ReadWriteCloser, error)
}

// OpenStream implements StreamOpener on the libp2p host.
func (h *Host) OpenStream(ctx context.Context, peerID string, protocolID string) (io.ReadWriteCloser, error) {
	pid, err := peer.Decode(peerID)
	if err != nil {
		return nil, fmt.Errorf("decoding peer id %q: %w", peerID, err)
	}
	return h.host.NewStream(ctx, pid, protocol.ID(protocolID))
}

// HandleRelayStreams registers the messenger as the inbound handler for relay
// streams. Each stream carries exactly one envelope.
func (h *Host) HandleRelayStreams(m *Messenger) {
	h.host.SetStreamHandler(protocol.ID(ProtocolID), func(stream network.Stream) {
		defer stream.Close()

		var env Envelope
		if err := json.NewDecoder(io.LimitReader(stream, maxEnvelopeSize)).Decode(&env); err != nil {
			h.log.Warn("Dropping undecodable relay message", "err", err)
			return
		}
		m.Deliver(env)
	})
}

// Messenger sends and receives relay envelopes. Sending opens one stream per
// message; inbound envelopes collect in a bounded inbox consumed through
// WaitForMessage or an optional handler.
type Messenger struct {
	opener StreamOpener
	log    *slog.Logger

	mu      sync.Mutex
	pending []Envelope
	handler func(Envelope)

	// arrival is closed and replaced on every delivery, waking all waiters
	// for a re-scan of pending.
	arrival chan struct{}
}

// NewMessenger creates a messenger sending through the given opener.
func NewMessenger(opener StreamOpener, log *slog.Logger) *Messenger {
	return &Messenger{
		opener:  opener,
		log:     log,
		arrival: make(chan struct{}),
	}
}

// SetHandler installs a callback invoked for every delivered envelope, in
// addition to the inbox. Used to bridge relay messages into session events.
func (m *Messenger) SetHandler(handler func(Envelope)) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

// Send delivers one envelope to a peer over a fresh stream.
func (m *Messenger) Send(ctx context.Context, peerID string, env Envelope) error {
	if env.SentAt.IsZero() {
		env.SentAt = time.Now().UTC()
	}

	stream, err := m.opener.OpenStream(ctx, peerID, ProtocolID)
	if err != nil {
		return fmt.Errorf("opening relay stream to %s: %w", peerID, err)
	}
	defer stream.Close()

	if err := json.NewEncoder(stream).Encode(&env); err != nil {
		return fmt.Errorf("writing relay message to %s: %w", peerID, err)
	}

	m.log.Debug("Relay message sent", "peerID", peerID, "type", env.Type, "sessionID", env.SessionID)
	return nil
}

// Deliver hands an inbound envelope to the handler and the inbox. The stream
// handler calls it for every decoded message; tests call it directly.
func (m *Messenger) Deliver(env Envelope) {
	m.mu.Lock()
	handler := m.handler
	if len(m.pending) >= inboxLimit {
		m.log.Warn("Relay inbox full, dropping oldest message", "droppedType", m.pending[0].Type)
		m.pending = m.pending[1:]
	}
	m.pending = append(m.pending, env)
	close(m.arrival)
	m.arrival = make(chan struct{})
	m.mu.Unlock()

	if handler != nil {
		handler(env)
	}
}

// WaitForMessage blocks until an envelope of the given type arrives or the
// context ends. Envelopes of other types stay queued for other waiters.
func (m *Messenger) WaitForMessage(ctx context.Context, msgType string) (Envelope, error) {
	for {
		m.mu.Lock()
		if env, ok := m.takeLocked(msgType); ok {
			m.mu.Unlock()
			return env, nil
		}
		arrival := m.arrival
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		case <-arrival:
		}
	}
}

// takeLocked removes and returns the first pending envelope of a type. The
// caller holds the mutex.
func (m *Messenger) takeLocked(msgType string) (Envelope, bool) {
	for i, env := range m.pending {
		if env.Type == msgType {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return env, true
		}
	}
	return Envelope{}, false
}
