// Package interfaces defines the core types and contracts shared by the
// registration coordinator components, separating definitions from
// implementations.
package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChainID identifies an EVM chain by its numeric chain identifier.
type ChainID uint64

// String returns the decimal representation used in logs and API payloads.
func (id ChainID) String() string {
	return fmt.Sprintf("%d", uint64(id))
}

// WalletAddress represents the 20-byte address of a wallet being registered.
type WalletAddress [20]byte

// ContractAddress represents the 20-byte address of a registry contract.
type ContractAddress [20]byte

func decodeAddress(addr string) ([]byte, error) {
	clean := strings.TrimPrefix(addr, "0x")
	if len(clean) != 40 {
		return nil, errors.New("invalid address length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex format: %w", err)
	}
	return addrBytes, nil
}

// NewWalletAddressFromHex parses a wallet address from a hex string, with or
// without the 0x prefix.
func NewWalletAddressFromHex(addr string) (WalletAddress, error) {
	addrBytes, err := decodeAddress(addr)
	if err != nil {
		return WalletAddress{}, err
	}

	var res WalletAddress
	copy(res[:], addrBytes)
	return res, nil
}

// NewContractAddressFromHex parses a contract address from a hex string, with
// or without the 0x prefix.
func NewContractAddressFromHex(addr string) (ContractAddress, error) {
	addrBytes, err := decodeAddress(addr)
	if err != nil {
		return ContractAddress{}, err
	}

	var res ContractAddress
	copy(res[:], addrBytes)
	return res, nil
}

// String returns the 0x-prefixed hex representation of the wallet address.
func (addr WalletAddress) String() string {
	return "0x" + hex.EncodeToString(addr[:])
}

// Bytes returns the raw 20-byte address.
func (addr WalletAddress) Bytes() []byte {
	return addr[:]
}

// String returns the 0x-prefixed hex representation of the contract address.
func (addr ContractAddress) String() string {
	return "0x" + hex.EncodeToString(addr[:])
}

// Bytes returns the raw 20-byte address.
func (addr ContractAddress) Bytes() []byte {
	return addr[:]
}

// MessageID identifies a cross-chain registration message. The hub contract
// assigns it when a registration is submitted and records it alongside the
// stored registration.
type MessageID [32]byte

// NewMessageIDFromHex parses a message identifier from a hex string, with or
// without the 0x prefix.
func NewMessageIDFromHex(s string) (MessageID, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != 64 {
		return MessageID{}, errors.New("invalid message id length: hex string must be 64 characters")
	}

	idBytes, err := hex.DecodeString(clean)
	if err != nil {
		return MessageID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var res MessageID
	copy(res[:], idBytes)
	return res, nil
}

// String returns the 0x-prefixed hex representation of the message id.
func (id MessageID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// IsZero reports whether the message id is unset.
func (id MessageID) IsZero() bool {
	return id == MessageID{}
}

// RegistrationVariant selects what is being registered.
type RegistrationVariant string

const (
	// VariantWallet registers a compromised wallet.
	VariantWallet RegistrationVariant = "wallet"

	// VariantTransaction registers fraudulent transactions observed on the
	// compromised wallet.
	VariantTransaction RegistrationVariant = "transaction"
)

// Validate checks that the variant is one of the supported values.
func (v RegistrationVariant) Validate() error {
	switch v {
	case VariantWallet, VariantTransaction:
		return nil
	}
	return fmt.Errorf("unsupported registration variant: %q", string(v))
}

// CoordinationMode selects who pays for the registration transactions and how
// the payer is coordinated.
type CoordinationMode string

const (
	// ModeStandard has the registeree sign and pay from the same wallet.
	ModeStandard CoordinationMode = "standard"

	// ModeSelfRelay has the registeree sign with the compromised wallet and
	// pay from a second wallet they control.
	ModeSelfRelay CoordinationMode = "selfRelay"

	// ModeP2PRelay has a third-party relayer pay, coordinated over a peer
	// connection.
	ModeP2PRelay CoordinationMode = "p2pRelay"
)

// Validate checks that the mode is one of the supported values.
func (m CoordinationMode) Validate() error {
	switch m {
	case ModeStandard, ModeSelfRelay, ModeP2PRelay:
		return nil
	}
	return fmt.Errorf("unsupported coordination mode: %q", string(m))
}

// ParticipantRole identifies which side of a registration a session instance
// serves.
type ParticipantRole string

const (
	// RoleRegisteree is the owner of the wallet being registered.
	RoleRegisteree ParticipantRole = "registeree"

	// RoleRelayer is the third party paying gas on the registeree's behalf.
	RoleRelayer ParticipantRole = "relayer"
)

// Validate checks that the role is one of the supported values.
func (r ParticipantRole) Validate() error {
	switch r {
	case RoleRegisteree, RoleRelayer:
		return nil
	}
	return fmt.Errorf("unsupported participant role: %q", string(r))
}

// AcknowledgementRecord mirrors the on-chain acknowledgement entry for a
// wallet with a pending registration.
type AcknowledgementRecord struct {
	// TrustedForwarder is the address allowed to relay the registration.
	TrustedForwarder WalletAddress

	// StartBlock is the first block of the grace period.
	StartBlock uint64

	// ExpiryBlock is the first block past the grace period.
	ExpiryBlock uint64
}

// RegistrationRecord mirrors the on-chain registration entry for a registered
// wallet. It is only ever populated from chain reads, never fabricated
// locally.
type RegistrationRecord struct {
	// RegisteredAt is the block timestamp of the stored registration.
	RegisteredAt uint64

	// SourceChainID is the chain the registration was submitted from.
	SourceChainID ChainID

	// BridgeID identifies the cross-chain transport that carried the message.
	BridgeID uint32

	// IsSponsored reports whether a relayer paid for the registration.
	IsSponsored bool

	// CrossChainMessageID is the message id assigned at submission.
	CrossChainMessageID MessageID
}

// RegistryStatusSnapshot is the result of one batched registry read. A nil
// Registration or Acknowledgement means the corresponding entry was either
// not applicable or could not be read this cycle.
type RegistryStatusSnapshot struct {
	Registered      bool
	Pending         bool
	Registration    *RegistrationRecord
	Acknowledgement *AcknowledgementRecord

	// Degraded reports that at least one of the batched reads failed and the
	// snapshot carries less information than the chain holds.
	Degraded bool
}

// SignedPayload holds an opaque signature produced by the wallet layer
// together with its validity deadline.
type SignedPayload struct {
	Signature []byte
	Deadline  time.Time
}

// ExpiredAt reports whether the signature deadline has passed at the given
// time.
func (p *SignedPayload) ExpiredAt(now time.Time) bool {
	return !p.Deadline.IsZero() && now.After(p.Deadline)
}

// ConnectionStatus describes the state of a peer relay connection.
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
)

// PeerConnection describes a session's peer relay link. It is owned and
// mutated by the peer relay coordinator; every other component reads
// snapshots only.
type PeerConnection struct {
	// LocalRole is the role this side plays on the connection.
	LocalRole ParticipantRole

	// RemotePeerID is the libp2p peer id of the counterparty, when known.
	RemotePeerID string

	// RelayPeerIDs lists the trusted relay peers considered acceptable
	// counterparties for this session.
	RelayPeerIDs []string

	Status ConnectionStatus

	// LatencyMillis is the last measured round-trip latency. It is nil when
	// the connection is down and after passive checks, which do not measure
	// latency.
	LatencyMillis *int64
}
