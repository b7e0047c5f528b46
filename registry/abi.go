package registry

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
)

// registryABIJSON covers the four read functions the gateway batches. The
// registry contract exposes more, but the coordinator only ever reads these.
const registryABIJSON = `[
	{"type":"function","name":"isRegistered","stateMutability":"view","inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"isPending","stateMutability":"view","inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"registrationOf","stateMutability":"view","inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"registeredAt","type":"uint64"},{"name":"sourceChainId","type":"uint64"},{"name":"bridgeId","type":"uint32"},{"name":"isSponsored","type":"bool"},{"name":"crossChainMessageId","type":"bytes32"}]},
	{"type":"function","name":"acknowledgementOf","stateMutability":"view","inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"trustedForwarder","type":"address"},{"name":"startBlock","type":"uint256"},{"name":"expiryBlock","type":"uint256"}]}
]`

// multicall3ABIJSON is the aggregate3 entry point of the canonical Multicall3
// contract.
const multicall3ABIJSON = `[
	{"type":"function","name":"aggregate3","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"callData","type":"bytes"}]}],"outputs":[{"name":"returnData","type":"tuple[]","components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}]}]}
]`

var (
	registryABI   = mustParseABI(registryABIJSON)
	multicall3ABI = mustParseABI(multicall3ABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// multicall3Call is one entry of an aggregate3 batch.
type multicall3Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// multicall3Result is one entry of an aggregate3 response.
type multicall3Result struct {
	Success    bool
	ReturnData []byte
}

// packStatusCalls builds the aggregate3 calldata for the four status reads,
// in gateway order: registered flag, pending flag, registration entry,
// acknowledgement entry.
func packStatusCalls(contract, wallet common.Address) ([]byte, error) {
	methods := []string{"isRegistered", "isPending", "registrationOf", "acknowledgementOf"}

	calls := make([]multicall3Call, 0, len(methods))
	for _, method := range methods {
		callData, err := registryABI.Pack(method, wallet)
		if err != nil {
			return nil, fmt.Errorf("packing %s: %w", method, err)
		}
		calls = append(calls, multicall3Call{
			Target:       contract,
			AllowFailure: true,
			CallData:     callData,
		})
	}

	return multicall3ABI.Pack("aggregate3", calls)
}

// unpackAggregate3 decodes the per-call results of an aggregate3 response.
func unpackAggregate3(raw []byte) ([]multicall3Result, error) {
	out, err := multicall3ABI.Unpack("aggregate3", raw)
	if err != nil {
		return nil, fmt.Errorf("unpacking aggregate3 response: %w", err)
	}
	return *abi.ConvertType(out[0], new([]multicall3Result)).(*[]multicall3Result), nil
}

func decodeBool(method string, data []byte) (bool, error) {
	out, err := registryABI.Unpack(method, data)
	if err != nil {
		return false, fmt.Errorf("decoding %s: %w", method, err)
	}
	value, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("decoding %s: unexpected type %T", method, out[0])
	}
	return value, nil
}

func decodeRegistration(data []byte) (*interfaces.RegistrationRecord, error) {
	out, err := registryABI.Unpack("registrationOf", data)
	if err != nil {
		return nil, fmt.Errorf("decoding registrationOf: %w", err)
	}

	return &interfaces.RegistrationRecord{
		RegisteredAt:        out[0].(uint64),
		SourceChainID:       interfaces.ChainID(out[1].(uint64)),
		BridgeID:            out[2].(uint32),
		IsSponsored:         out[3].(bool),
		CrossChainMessageID: interfaces.MessageID(out[4].([32]byte)),
	}, nil
}

func decodeAcknowledgement(data []byte) (*interfaces.AcknowledgementRecord, error) {
	out, err := registryABI.Unpack("acknowledgementOf", data)
	if err != nil {
		return nil, fmt.Errorf("decoding acknowledgementOf: %w", err)
	}

	return &interfaces.AcknowledgementRecord{
		TrustedForwarder: interfaces.WalletAddress(out[0].(common.Address)),
		StartBlock:       out[1].(*big.Int).Uint64(),
		ExpiryBlock:      out[2].(*big.Int).Uint64(),
	}, nil
}
