// Package registry reads the on-chain wallet registry through batched
// multicall queries and normalizes the results into typed status snapshots.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/stolen-wallet-registry/registry-coordinator/chains"
	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
)

// MulticallAddress is the canonical Multicall3 deployment, identical on every
// supported chain.
var MulticallAddress = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// StatusGateway reads a wallet's registry state in one batched round trip:
// registered flag, pending flag, registration entry and acknowledgement
// entry. Each sub-read may fail independently; a failed sub-read degrades its
// snapshot field instead of failing the whole call.
type StatusGateway struct {
	caller    ethereum.ContractCaller
	contract  common.Address
	multicall common.Address
	log       *slog.Logger
}

// NewStatusGateway creates a gateway bound to one registry contract. The
// caller is any read-capable chain client.
func NewStatusGateway(caller ethereum.ContractCaller, contract interfaces.ContractAddress, log *slog.Logger) *StatusGateway {
	return &StatusGateway{
		caller:    caller,
		contract:  common.Address(contract),
		multicall: MulticallAddress,
		log:       log,
	}
}

// SetMulticallAddress overrides the canonical Multicall3 address for chains
// carrying a non-standard deployment.
func (g *StatusGateway) SetMulticallAddress(addr interfaces.ContractAddress) {
	g.multicall = common.Address(addr)
}

// FetchStatus performs the batched status read for a wallet. An error means
// the round trip itself failed and the caller learned nothing; sub-read
// failures surface only as degraded snapshot fields.
func (g *StatusGateway) FetchStatus(ctx context.Context, registeree interfaces.WalletAddress) (interfaces.RegistryStatusSnapshot, error) {
	wallet := common.Address(registeree)

	calldata, err := packStatusCalls(g.contract, wallet)
	if err != nil {
		return interfaces.RegistryStatusSnapshot{}, err
	}

	raw, err := g.caller.CallContract(ctx, ethereum.CallMsg{To: &g.multicall, Data: calldata}, nil)
	if err != nil {
		return interfaces.RegistryStatusSnapshot{}, fmt.Errorf("registry status multicall: %w", err)
	}

	results, err := unpackAggregate3(raw)
	if err != nil {
		return interfaces.RegistryStatusSnapshot{}, err
	}
	if len(results) != 4 {
		return interfaces.RegistryStatusSnapshot{}, fmt.Errorf("registry status multicall: expected 4 results, got %d", len(results))
	}

	var snap interfaces.RegistryStatusSnapshot

	// Flag reads. A failed flag is reported as false; callers must not
	// distinguish "false because unreadable" from "actually false".
	registered, registeredOK := g.flagResult("isRegistered", wallet, results[0])
	pending, pendingOK := g.flagResult("isPending", wallet, results[1])
	snap.Registered = registeredOK && registered
	snap.Pending = pendingOK && pending
	snap.Degraded = !registeredOK || !pendingOK

	// Entry reads are only trusted when their guarding flag read succeeded
	// and reported true. A successful entry read under a failed flag read is
	// discarded.
	if snap.Registered {
		if results[2].Success {
			record, err := decodeRegistration(results[2].ReturnData)
			if err != nil {
				g.log.Warn("Registration entry decode failed", "wallet", wallet.Hex(), "err", err)
				snap.Degraded = true
			} else {
				snap.Registration = record
			}
		} else {
			g.log.Warn("Registration entry read failed", "wallet", wallet.Hex())
			snap.Degraded = true
		}
	}

	if snap.Pending {
		if results[3].Success {
			record, err := decodeAcknowledgement(results[3].ReturnData)
			if err != nil {
				g.log.Warn("Acknowledgement entry decode failed", "wallet", wallet.Hex(), "err", err)
				snap.Degraded = true
			} else {
				snap.Acknowledgement = record
			}
		} else {
			g.log.Warn("Acknowledgement entry read failed", "wallet", wallet.Hex())
			snap.Degraded = true
		}
	}

	return snap, nil
}

// flagResult decodes a boolean sub-read, reporting ok=false when the read
// failed on-chain or the payload would not decode.
func (g *StatusGateway) flagResult(method string, wallet common.Address, res multicall3Result) (value, ok bool) {
	if !res.Success {
		g.log.Warn("Registry flag read failed", "method", method, "wallet", wallet.Hex())
		return false, false
	}

	value, err := decodeBool(method, res.ReturnData)
	if err != nil {
		g.log.Warn("Registry flag decode failed", "method", method, "wallet", wallet.Hex(), "err", err)
		return false, false
	}
	return value, true
}

// GatewayFactory creates status gateways per chain, resolving the registry
// contract from the chain table and the client from the pool. Gateways are
// cached per chain.
type GatewayFactory struct {
	cfg  *chains.Config
	pool *chains.Pool
	log  *slog.Logger

	mu       sync.Mutex
	gateways map[interfaces.ChainID]*StatusGateway
}

// NewGatewayFactory creates a factory over the chain table and client pool.
func NewGatewayFactory(cfg *chains.Config, pool *chains.Pool, log *slog.Logger) *GatewayFactory {
	return &GatewayFactory{
		cfg:      cfg,
		pool:     pool,
		log:      log,
		gateways: make(map[interfaces.ChainID]*StatusGateway),
	}
}

// GatewayFor returns the status gateway for a chain.
func (f *GatewayFactory) GatewayFor(chain interfaces.ChainID) (interfaces.RegistryStatusFetcher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if gw, ok := f.gateways[chain]; ok {
		return gw, nil
	}

	contract, err := f.cfg.RegistryContract(chain)
	if err != nil {
		return nil, err
	}

	client, err := f.pool.ClientFor(chain)
	if err != nil {
		return nil, err
	}

	gw := NewStatusGateway(client, contract, f.log.With("chainID", chain.String()))
	f.gateways[chain] = gw
	return gw, nil
}
