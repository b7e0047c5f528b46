// Package chains resolves chain roles for the cross-chain registry and holds
// the process-wide chain table: RPC endpoints, registry contract addresses,
// explorer URLs and block times.
package chains

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
)

// Role classifies a chain in the registry topology.
type Role string

const (
	// RoleHub marks a chain where registrations settle.
	RoleHub Role = "hub"

	// RoleSpoke marks a chain that bridges registrations to a hub.
	RoleSpoke Role = "spoke"
)

// ErrNoHubMapping is returned when a chain is not a hub and has no configured
// hub mapping. Callers must surface it; silently substituting a default hub
// can route signatures to the wrong settlement chain.
var ErrNoHubMapping = errors.New("no hub mapping for chain")

// Resolution describes how a chain participates in the registry.
type Resolution struct {
	Chain interfaces.ChainID
	Role  Role

	// Hub is the settlement chain: the chain itself for hubs, the mapped hub
	// for spokes.
	Hub interfaces.ChainID
}

// Resolver answers chain-role queries from a fixed table loaded at process
// start. It is immutable after construction and safe for concurrent use.
type Resolver struct {
	hubs   map[interfaces.ChainID]struct{}
	spokes map[interfaces.ChainID]interfaces.ChainID
	log    *slog.Logger
}

// NewResolver builds a resolver from the chain table.
func NewResolver(cfg *Config, log *slog.Logger) *Resolver {
	r := &Resolver{
		hubs:   make(map[interfaces.ChainID]struct{}),
		spokes: make(map[interfaces.ChainID]interfaces.ChainID),
		log:    log,
	}
	for _, entry := range cfg.Chains {
		switch Role(entry.Role) {
		case RoleHub:
			r.hubs[interfaces.ChainID(entry.ChainID)] = struct{}{}
		case RoleSpoke:
			r.spokes[interfaces.ChainID(entry.ChainID)] = interfaces.ChainID(entry.HubChainID)
		}
	}
	return r
}

// IsHubChain reports whether the chain is in the configured hub set.
func (r *Resolver) IsHubChain(chain interfaces.ChainID) bool {
	_, ok := r.hubs[chain]
	return ok
}

// IsSpokeChain is the exact negation of IsHubChain. A chain without a hub
// mapping is still a spoke, just one that cannot be resolved.
func (r *Resolver) IsSpokeChain(chain interfaces.ChainID) bool {
	return !r.IsHubChain(chain)
}

// HubChainFor returns the hub a spoke bridges to. It returns ok=false when
// the chain is itself a hub or when no mapping is configured.
func (r *Resolver) HubChainFor(chain interfaces.ChainID) (interfaces.ChainID, bool) {
	if r.IsHubChain(chain) {
		return 0, false
	}
	hub, ok := r.spokes[chain]
	return hub, ok
}

// Resolve classifies a chain and determines its settlement hub. An unknown
// spoke yields ErrNoHubMapping and a warning; it never defaults to a hub.
func (r *Resolver) Resolve(chain interfaces.ChainID) (Resolution, error) {
	if r.IsHubChain(chain) {
		return Resolution{Chain: chain, Role: RoleHub, Hub: chain}, nil
	}

	hub, ok := r.spokes[chain]
	if !ok {
		r.log.Warn("Chain has no hub mapping", "chainID", chain.String())
		return Resolution{}, fmt.Errorf("%w: %s", ErrNoHubMapping, chain.String())
	}

	return Resolution{Chain: chain, Role: RoleSpoke, Hub: hub}, nil
}
