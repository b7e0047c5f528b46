package chains

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
)

// Duration wraps time.Duration for YAML parsing of values like "2s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// ChainEntry describes one chain in the table.
type ChainEntry struct {
	ChainID uint64 `yaml:"chain-id"`
	Name    string `yaml:"name"`

	// Role is "hub" or "spoke".
	Role string `yaml:"role"`

	// HubChainID names the settlement hub for spokes. Hubs leave it unset.
	HubChainID uint64 `yaml:"hub-chain-id,omitempty"`

	// RegistryContract is the 20-byte registry contract address on this
	// chain. May be empty for chains the coordinator never reads from.
	RegistryContract string `yaml:"registry-contract,omitempty"`

	RPCURL      string   `yaml:"rpc-url,omitempty"`
	ExplorerURL string   `yaml:"explorer-url,omitempty"`
	BlockTime   Duration `yaml:"block-time,omitempty"`
}

// Config is the process-wide chain table. It is loaded once at startup and
// never mutated afterwards.
type Config struct {
	Chains []ChainEntry `yaml:"chains"`

	byID map[interfaces.ChainID]*ChainEntry
}

// Parse loads and validates a chain table from a YAML file.
func Parse(file string) (*Config, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing chain table: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in chain table: Base and Base Sepolia hubs with
// their Optimism spokes, plus the local Anvil pair used in development.
func Default() *Config {
	cfg := &Config{
		Chains: []ChainEntry{
			{
				ChainID:     8453,
				Name:        "Base",
				Role:        "hub",
				RPCURL:      "https://mainnet.base.org",
				ExplorerURL: "https://basescan.org",
				BlockTime:   Duration(2 * time.Second),
			},
			{
				ChainID:     84532,
				Name:        "Base Sepolia",
				Role:        "hub",
				RPCURL:      "https://sepolia.base.org",
				ExplorerURL: "https://sepolia.basescan.org",
				BlockTime:   Duration(2 * time.Second),
			},
			{
				ChainID:          31337,
				Name:             "Anvil",
				Role:             "hub",
				RegistryContract: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
				RPCURL:           "http://127.0.0.1:8545",
				BlockTime:        Duration(1 * time.Second),
			},
			{
				ChainID:     10,
				Name:        "OP Mainnet",
				Role:        "spoke",
				HubChainID:  8453,
				RPCURL:      "https://mainnet.optimism.io",
				ExplorerURL: "https://optimistic.etherscan.io",
				BlockTime:   Duration(2 * time.Second),
			},
			{
				ChainID:     11155420,
				Name:        "OP Sepolia",
				Role:        "spoke",
				HubChainID:  84532,
				RPCURL:      "https://sepolia.optimism.io",
				ExplorerURL: "https://sepolia-optimism.etherscan.io",
				BlockTime:   Duration(2 * time.Second),
			},
			{
				ChainID:          31338,
				Name:             "Anvil Spoke",
				Role:             "spoke",
				HubChainID:       31337,
				RegistryContract: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
				RPCURL:           "http://127.0.0.1:8546",
				BlockTime:        Duration(1 * time.Second),
			},
		},
	}

	// The built-in table is known good.
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks the table for structural problems and builds the lookup
// index.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("chain table is empty")
	}

	c.byID = make(map[interfaces.ChainID]*ChainEntry, len(c.Chains))
	hubs := make(map[interfaces.ChainID]struct{})

	for i := range c.Chains {
		entry := &c.Chains[i]
		id := interfaces.ChainID(entry.ChainID)

		if entry.ChainID == 0 {
			return fmt.Errorf("chain entry %d: chain-id is required", i)
		}
		if _, dup := c.byID[id]; dup {
			return fmt.Errorf("duplicate chain entry for chain %s", id.String())
		}

		switch Role(entry.Role) {
		case RoleHub:
			if entry.HubChainID != 0 {
				return fmt.Errorf("chain %s: hubs must not set hub-chain-id", id.String())
			}
			hubs[id] = struct{}{}
		case RoleSpoke:
			if entry.HubChainID == 0 {
				return fmt.Errorf("chain %s: spokes require hub-chain-id", id.String())
			}
		default:
			return fmt.Errorf("chain %s: invalid role %q", id.String(), entry.Role)
		}

		if entry.RegistryContract != "" {
			if _, err := interfaces.NewContractAddressFromHex(entry.RegistryContract); err != nil {
				return fmt.Errorf("chain %s: invalid registry contract: %w", id.String(), err)
			}
		}

		c.byID[id] = entry
	}

	// Spoke mappings must point at configured hubs.
	for i := range c.Chains {
		entry := &c.Chains[i]
		if Role(entry.Role) != RoleSpoke {
			continue
		}
		if _, ok := hubs[interfaces.ChainID(entry.HubChainID)]; !ok {
			return fmt.Errorf("chain %d: hub-chain-id %d is not a configured hub", entry.ChainID, entry.HubChainID)
		}
	}

	return nil
}

// Entry returns the table entry for a chain.
func (c *Config) Entry(chain interfaces.ChainID) (*ChainEntry, bool) {
	entry, ok := c.byID[chain]
	return entry, ok
}

// RegistryContract returns the registry contract address configured for a
// chain.
func (c *Config) RegistryContract(chain interfaces.ChainID) (interfaces.ContractAddress, error) {
	entry, ok := c.byID[chain]
	if !ok {
		return interfaces.ContractAddress{}, fmt.Errorf("unknown chain %s", chain.String())
	}
	if entry.RegistryContract == "" {
		return interfaces.ContractAddress{}, fmt.Errorf("no registry contract configured for chain %s", chain.String())
	}
	return interfaces.NewContractAddressFromHex(entry.RegistryContract)
}

// ExplorerTxURL renders a block explorer link for a transaction hash. It
// returns ok=false when the chain has no explorer configured.
func (c *Config) ExplorerTxURL(chain interfaces.ChainID, txHash string) (string, bool) {
	entry, ok := c.byID[chain]
	if !ok || entry.ExplorerURL == "" || txHash == "" {
		return "", false
	}
	return entry.ExplorerURL + "/tx/" + txHash, true
}

// BlockTime returns the configured average block time for a chain.
func (c *Config) BlockTime(chain interfaces.ChainID) (time.Duration, bool) {
	entry, ok := c.byID[chain]
	if !ok || entry.BlockTime == 0 {
		return 0, false
	}
	return time.Duration(entry.BlockTime), true
}
