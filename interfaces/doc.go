// Package interfaces defines core types and contracts for the cross-chain
// wallet registry coordinator, separating definitions from implementations.
//
// # Domain Types
//
// The package defines the vocabulary shared by every component:
//
//   - ChainID: numeric EVM chain identifier
//   - WalletAddress / ContractAddress: 20-byte addresses with hex parsing
//   - MessageID: 32-byte cross-chain message identifier
//   - RegistrationVariant: wallet or transaction registration
//   - CoordinationMode: standard, selfRelay or p2pRelay payment coordination
//   - ParticipantRole: registeree or relayer
//
// # Registry Records
//
// AcknowledgementRecord and RegistrationRecord mirror the on-chain entries of
// the registry contract. RegistryStatusSnapshot bundles them with the
// registered/pending flags as the result of one batched read; a snapshot is
// the only source registration data may be populated from.
//
// # Collaborator Contracts
//
// RegistryStatusFetcher performs the batched registry read for one chain.
// BlockNumberReader reports a chain's head block for grace-period math.
// StatusGatewayFactory and BlockReaderSource hand out per-chain instances of
// both.
//
// # Peer Connections
//
// PeerConnection describes a session's relay link. The peer relay coordinator
// is its single writer; all other components receive read-only snapshots.
package interfaces
