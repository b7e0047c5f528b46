package interfaces

import "context"

// RegistryStatusFetcher reads the registry contract state for a wallet in a
// single batched round trip.
type RegistryStatusFetcher interface {
	// FetchStatus returns the current registry view of the wallet. An error
	// means the round trip itself failed and the caller learned nothing new;
	// individual read failures inside the batch degrade the snapshot instead.
	FetchStatus(ctx context.Context, registeree WalletAddress) (RegistryStatusSnapshot, error)
}

// BlockNumberReader reports the current head block of one chain.
type BlockNumberReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// StatusGatewayFactory creates status fetchers bound to a chain's registry
// contract.
type StatusGatewayFactory interface {
	GatewayFor(chain ChainID) (RegistryStatusFetcher, error)
}

// BlockReaderSource provides head-block readers per chain.
type BlockReaderSource interface {
	BlockReaderFor(chain ChainID) (BlockNumberReader, error)
}
