package peerrelay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	libp2ptls "github.com/libp2p/go-libp2p/p2p/security/tls"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/multiformats/go-multiaddr"
)

// HostConfig configures the local libp2p node.
type HostConfig struct {
	// ListenPort is the TCP port to listen on. Zero selects a random port.
	ListenPort int

	// DisablePing drops the ping capability; probes then degrade to
	// not-connected instead of failing.
	DisablePing bool

	Log *slog.Logger
}

// Host adapts a libp2p node to the coordinator's PeerNode view and feeds
// networking notifications into an event channel.
type Host struct {
	host   host.Host
	pinger *ping.PingService
	events chan NetworkEvent
	log    *slog.Logger
}

// NewHost creates and starts a libp2p node with noise and TLS security over
// TCP, a connection manager, and connect/disconnect notifications.
func NewHost(cfg *HostConfig) (*Host, error) {
	cm, err := connmgr.NewConnManager(16, 64, connmgr.WithGracePeriod(time.Minute))
	if err != nil {
		return nil, fmt.Errorf("creating connection manager: %w", err)
	}

	node, err := libp2p.New(
		libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.ListenPort)),
		libp2p.ConnectionManager(cm),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Security(libp2ptls.ID, libp2ptls.New),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Ping(false),
	)
	if err != nil {
		return nil, fmt.Errorf("creating libp2p host: %w", err)
	}

	h := &Host{
		host:   node,
		events: make(chan NetworkEvent, 64),
		log:    cfg.Log,
	}
	if !cfg.DisablePing {
		h.pinger = ping.NewPingService(node)
	}

	node.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, conn network.Conn) {
			h.log.Debug("Peer connected", "peerID", conn.RemotePeer().String(), "addr", conn.RemoteMultiaddr().String())
			h.emit(NetworkEvent{Type: PeerConnected, PeerID: conn.RemotePeer().String()})
		},
		DisconnectedF: func(_ network.Network, conn network.Conn) {
			h.log.Debug("Peer disconnected", "peerID", conn.RemotePeer().String(), "addr", conn.RemoteMultiaddr().String())
			h.emit(NetworkEvent{Type: PeerDisconnected, PeerID: conn.RemotePeer().String()})
		},
	})

	h.log.Info("Libp2p host started", "peerID", node.ID().String(), "addrs", node.Addrs())
	return h, nil
}

// emit delivers a notification without ever blocking the network stack. The
// coordinator reconciles against OpenConnections on health checks, so a
// dropped notification is not permanent.
func (h *Host) emit(ev NetworkEvent) {
	select {
	case h.events <- ev:
	default:
		h.log.Warn("Network event channel full, dropping event", "type", string(ev.Type), "peerID", ev.PeerID)
	}
}

// Events returns the channel of networking notifications the coordinator
// folds.
func (h *Host) Events() <-chan NetworkEvent {
	return h.events
}

// ID returns the local peer identifier.
func (h *Host) ID() string {
	return h.host.ID().String()
}

// OpenConnections lists the node's current connections.
func (h *Host) OpenConnections() []OpenConnection {
	conns := h.host.Network().Conns()
	out := make([]OpenConnection, 0, len(conns))
	for _, conn := range conns {
		remote := conn.RemotePeer()
		out = append(out, OpenConnection{
			RemotePeerID: remote.String(),
			Open:         h.host.Network().Connectedness(remote) == network.Connected,
		})
	}
	return out
}

// Pinger returns the node's ping capability when enabled.
func (h *Host) Pinger() (Pinger, bool) {
	if h.pinger == nil {
		return nil, false
	}
	return &pingAdapter{service: h.pinger}, true
}

// Connect dials a peer by multiaddr.
func (h *Host) Connect(ctx context.Context, maddr string) error {
	addr, err := multiaddr.NewMultiaddr(maddr)
	if err != nil {
		return fmt.Errorf("parsing multiaddr %q: %w", maddr, err)
	}
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return fmt.Errorf("extracting peer info from %q: %w", maddr, err)
	}

	if h.host.Network().Connectedness(info.ID) == network.Connected {
		return nil
	}
	if err := h.host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("connecting to %s: %w", info.ID.String(), err)
	}

	h.log.Info("Connected to relay peer", "peerID", info.ID.String())
	return nil
}

// Close shuts the node down.
func (h *Host) Close() error {
	return h.host.Close()
}

// pingAdapter exposes the libp2p ping service through the Pinger contract.
type pingAdapter struct {
	service *ping.PingService
}

func (p *pingAdapter) Ping(ctx context.Context, peerID string) (time.Duration, error) {
	pid, err := peer.Decode(peerID)
	if err != nil {
		return 0, fmt.Errorf("decoding peer id %q: %w", peerID, err)
	}

	select {
	case result, ok := <-p.service.Ping(ctx, pid):
		if !ok {
			return 0, fmt.Errorf("ping to %s: channel closed", peerID)
		}
		if result.Error != nil {
			return 0, result.Error
		}
		return result.RTT, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
