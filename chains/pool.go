package chains

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
)

// Pool hands out one RPC client per chain, dialed lazily on first use and
// cached for the life of the process. Safe for concurrent use.
type Pool struct {
	cfg *Config
	log *slog.Logger

	mu      sync.Mutex
	clients map[interfaces.ChainID]*ethclient.Client
}

// NewPool creates an empty pool over the chain table.
func NewPool(cfg *Config, log *slog.Logger) *Pool {
	return &Pool{
		cfg:     cfg,
		log:     log,
		clients: make(map[interfaces.ChainID]*ethclient.Client),
	}
}

// ClientFor returns the cached RPC client for a chain, dialing it on first
// use.
func (p *Pool) ClientFor(chain interfaces.ChainID) (*ethclient.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[chain]; ok {
		return client, nil
	}

	entry, ok := p.cfg.Entry(chain)
	if !ok {
		return nil, fmt.Errorf("unknown chain %s", chain.String())
	}
	if entry.RPCURL == "" {
		return nil, fmt.Errorf("no rpc url configured for chain %s", chain.String())
	}

	client, err := ethclient.Dial(entry.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing chain %s: %w", chain.String(), err)
	}

	p.log.Info("Dialed chain RPC", "chainID", chain.String(), "name", entry.Name)
	p.clients[chain] = client
	return client, nil
}

// BlockReaderFor returns a head-block reader for the chain.
func (p *Pool) BlockReaderFor(chain interfaces.ChainID) (interfaces.BlockNumberReader, error) {
	return p.ClientFor(chain)
}

// Close disconnects every dialed client.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for chain, client := range p.clients {
		client.Close()
		delete(p.clients, chain)
	}
}
