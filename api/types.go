package api

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/stolen-wallet-registry/registry-coordinator/chains"
	"github.com/stolen-wallet-registry/registry-coordinator/graceperiod"
	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
	"github.com/stolen-wallet-registry/registry-coordinator/session"
)

// CreateSessionRequest starts a new registration session.
type CreateSessionRequest struct {
	// Variant selects the registration flow: wallet or transaction.
	Variant string `json:"variant"`

	// Mode selects the coordination mode: standard, selfRelay or p2pRelay.
	Mode string `json:"mode"`

	// Role is the side this session serves: registeree or relayer.
	Role string `json:"role"`

	// Registeree is the hex address of the wallet being registered.
	Registeree string `json:"registeree"`

	// OriginChainID is the chain the registeree acts on.
	OriginChainID uint64 `json:"originChainId"`

	// RelayPeerIDs lists the trusted relay peers for p2pRelay sessions.
	RelayPeerIDs []string `json:"relayPeerIds,omitempty"`
}

// EventRequest hands one event to a session. Type names a session event;
// the remaining fields are read per type and ignored otherwise.
type EventRequest struct {
	Type string `json:"type"`

	// Signature is the hex-encoded signature for signature-completed events.
	Signature string `json:"signature,omitempty"`

	// Deadline is the signature validity deadline.
	Deadline *time.Time `json:"deadline,omitempty"`

	// TxHash is the submitted transaction hash for payment-submitted events.
	TxHash string `json:"txHash,omitempty"`

	// MessageID is the hex-encoded cross-chain message id assigned at
	// submission.
	MessageID string `json:"messageId,omitempty"`

	// Transactions lists the chosen hashes for transactions-selected events.
	Transactions []string `json:"transactions,omitempty"`
}

// ToEvent decodes the request into a session event.
func (r EventRequest) ToEvent() (session.Event, error) {
	ev := session.Event{
		Type:         session.EventType(r.Type),
		TxHash:       r.TxHash,
		Transactions: r.Transactions,
	}

	if r.Signature != "" {
		sig, err := hex.DecodeString(strings.TrimPrefix(r.Signature, "0x"))
		if err != nil {
			return session.Event{}, fmt.Errorf("invalid signature encoding: %w", err)
		}
		payload := &interfaces.SignedPayload{Signature: sig}
		if r.Deadline != nil {
			payload.Deadline = *r.Deadline
		}
		ev.Signature = payload
	}

	if r.MessageID != "" {
		id, err := interfaces.NewMessageIDFromHex(r.MessageID)
		if err != nil {
			return session.Event{}, fmt.Errorf("invalid message id: %w", err)
		}
		ev.MessageID = id
	}

	return ev, nil
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`

	// Code is the machine-readable rejection reason, present on rejected
	// transitions.
	Code string `json:"code,omitempty"`
}

// SessionResponse is the external projection of one registration session.
type SessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Variant string `json:"variant"`
	Mode    string `json:"mode"`
	Role    string `json:"role"`

	Registeree    string `json:"registeree"`
	OriginChainID uint64 `json:"originChainId"`
	HubChainID    uint64 `json:"hubChainId"`

	// ContractAddress is the registry contract on the origin chain.
	ContractAddress string `json:"contractAddress"`

	// Step is the session's current position; Sequence is its full fixed step
	// order so clients can render progress without re-deriving it.
	Step     string   `json:"step"`
	Sequence []string `json:"sequence"`

	// Waiting describes what the session is waiting on, empty when the next
	// action is the local user's.
	Waiting string `json:"waiting,omitempty"`

	Stalled     bool   `json:"stalled"`
	StallReason string `json:"stallReason,omitempty"`

	FailureReason string `json:"failureReason,omitempty"`

	Acknowledgement *AcknowledgementInfo `json:"acknowledgement,omitempty"`
	Registration    *RegistrationInfo    `json:"registration,omitempty"`

	Grace *GraceInfo `json:"grace,omitempty"`

	SelectedTransactions []string `json:"selectedTransactions,omitempty"`

	// AcknowledgementTx and RegistrationTx link the submitted transactions,
	// when known.
	AcknowledgementTx *TransactionLink `json:"acknowledgementTx,omitempty"`
	RegistrationTx    *TransactionLink `json:"registrationTx,omitempty"`

	PeerConnection *PeerConnectionInfo `json:"peerConnection,omitempty"`
}

// AcknowledgementInfo mirrors the on-chain acknowledgement entry.
type AcknowledgementInfo struct {
	TrustedForwarder string `json:"trustedForwarder"`
	StartBlock       uint64 `json:"startBlock"`
	ExpiryBlock      uint64 `json:"expiryBlock"`
}

// RegistrationInfo mirrors the on-chain registration entry.
type RegistrationInfo struct {
	RegisteredAt        uint64 `json:"registeredAt"`
	SourceChainID       uint64 `json:"sourceChainId"`
	BridgeID            uint32 `json:"bridgeId"`
	IsSponsored         bool   `json:"isSponsored"`
	CrossChainMessageID string `json:"crossChainMessageId"`
}

// GraceInfo describes the grace period countdown. The estimate is derived
// from the configured block time and is approximate.
type GraceInfo struct {
	Status           string  `json:"status"`
	RemainingBlocks  uint64  `json:"remainingBlocks"`
	EstimatedSeconds float64 `json:"estimatedSeconds,omitempty"`
}

// TransactionLink pairs a transaction hash with its block explorer URL, when
// the chain has one configured.
type TransactionLink struct {
	TxHash      string `json:"txHash"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// PeerConnectionInfo describes the relay link of a p2pRelay session.
type PeerConnectionInfo struct {
	Status        string   `json:"status"`
	RemotePeerID  string   `json:"remotePeerId,omitempty"`
	RelayPeerIDs  []string `json:"relayPeerIds,omitempty"`
	LatencyMillis *int64   `json:"latencyMillis,omitempty"`
}

// NewSessionResponse projects a session into its wire representation. The
// chain table supplies explorer links and the block time behind the grace
// period estimate; it may be nil.
func NewSessionResponse(s *session.Session, table *chains.Config) SessionResponse {
	resp := SessionResponse{
		ID:              s.ID.String(),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		Variant:         string(s.Variant),
		Mode:            string(s.Mode),
		Role:            string(s.Role),
		Registeree:      s.Registeree.String(),
		OriginChainID:   uint64(s.OriginChainID),
		HubChainID:      uint64(s.HubChainID),
		ContractAddress: s.ContractAddress.String(),
		Step:            string(s.Step),
		Stalled:         s.Stalled,
		StallReason:     s.StallReason,
		FailureReason:   s.FailureReason,
	}

	for _, step := range s.Sequence() {
		resp.Sequence = append(resp.Sequence, string(step))
	}
	if msg, ok := session.WaitingMessage(s.Step, s.Mode, s.Role); ok {
		resp.Waiting = msg
	}

	if s.Acknowledgement != nil {
		resp.Acknowledgement = &AcknowledgementInfo{
			TrustedForwarder: s.Acknowledgement.TrustedForwarder.String(),
			StartBlock:       s.Acknowledgement.StartBlock,
			ExpiryBlock:      s.Acknowledgement.ExpiryBlock,
		}
	}
	if s.Registration != nil {
		resp.Registration = &RegistrationInfo{
			RegisteredAt:        s.Registration.RegisteredAt,
			SourceChainID:       uint64(s.Registration.SourceChainID),
			BridgeID:            s.Registration.BridgeID,
			IsSponsored:         s.Registration.IsSponsored,
			CrossChainMessageID: s.Registration.CrossChainMessageID.String(),
		}
	}

	if s.Step == session.StepGracePeriod && s.Acknowledgement != nil && s.LastObservedBlock > 0 {
		grace := &GraceInfo{
			Status:          string(graceperiod.StatusAt(*s.Acknowledgement, s.LastObservedBlock)),
			RemainingBlocks: graceperiod.RemainingBlocks(*s.Acknowledgement, s.LastObservedBlock),
		}
		if table != nil {
			if blockTime, ok := table.BlockTime(s.OriginChainID); ok {
				grace.EstimatedSeconds = graceperiod.Estimate(*s.Acknowledgement, s.LastObservedBlock, blockTime).Seconds()
			}
		}
		resp.Grace = grace
	}

	if len(s.SelectedTransactions) > 0 {
		resp.SelectedTransactions = append([]string(nil), s.SelectedTransactions...)
	}

	resp.AcknowledgementTx = transactionLink(table, s.OriginChainID, s.AcknowledgementTxHash)
	resp.RegistrationTx = transactionLink(table, s.OriginChainID, s.RegistrationTxHash)

	if s.PeerConnection != nil {
		info := &PeerConnectionInfo{
			Status:       string(s.PeerConnection.Status),
			RemotePeerID: s.PeerConnection.RemotePeerID,
			RelayPeerIDs: append([]string(nil), s.PeerConnection.RelayPeerIDs...),
		}
		if s.PeerConnection.LatencyMillis != nil {
			latency := *s.PeerConnection.LatencyMillis
			info.LatencyMillis = &latency
		}
		resp.PeerConnection = info
	}

	return resp
}

func transactionLink(table *chains.Config, chain interfaces.ChainID, txHash string) *TransactionLink {
	if txHash == "" {
		return nil
	}
	link := &TransactionLink{TxHash: txHash}
	if table != nil {
		if url, ok := table.ExplorerTxURL(chain, txHash); ok {
			link.ExplorerURL = url
		}
	}
	return link
}
