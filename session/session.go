// Package session drives registration sessions through their step sequences.
// It holds the registration state machine, the per-session coordinating task
// and the waiting-state projection shown to users.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/stolen-wallet-registry/registry-coordinator/graceperiod"
	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
)

// Session is one in-progress registration. A session belongs to exactly one
// coordinating task; everything outside that task reads copies.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time

	Variant interfaces.RegistrationVariant
	Mode    interfaces.CoordinationMode

	// Role is the side this session instance serves. Registeree and relayer
	// run separate instances over the same sequence; the role selects the
	// waiting-state projection.
	Role interfaces.ParticipantRole

	// Registeree is the wallet being registered.
	Registeree interfaces.WalletAddress

	OriginChainID interfaces.ChainID

	// HubChainID is the settlement chain, derived from the origin chain. It is
	// recomputed whenever the origin changes, never set directly.
	HubChainID interfaces.ChainID

	// ContractAddress is the registry contract on the origin chain.
	ContractAddress interfaces.ContractAddress

	Step Step

	// sequence is the fixed step order for (Variant, Mode), derived once at
	// creation.
	sequence []Step

	// Acknowledgement mirrors the on-chain acknowledgement entry once the
	// acknowledgement payment has confirmed. Set only from gateway snapshots.
	Acknowledgement *interfaces.AcknowledgementRecord

	// Registration mirrors the on-chain registration entry once registered.
	// Set only from gateway snapshots, never fabricated locally.
	Registration *interfaces.RegistrationRecord

	AcknowledgementSig *interfaces.SignedPayload
	RegistrationSig    *interfaces.SignedPayload

	// SubmittedMessageID is the cross-chain message id recorded when the
	// registration transaction was submitted. The success guard compares it
	// against the on-chain record to reject stale registrations.
	SubmittedMessageID interfaces.MessageID

	// SelectedTransactions lists the transaction hashes attached to a
	// transaction report.
	SelectedTransactions []string

	// AcknowledgementTxHash and RegistrationTxHash record the submitted
	// transaction hashes, when reported. Informational; confirmation always
	// comes from gateway snapshots.
	AcknowledgementTxHash string
	RegistrationTxHash    string

	// GraceStatus is the last observed grace period state.
	GraceStatus graceperiod.Status

	// LastObservedBlock is the most recent origin chain head folded in during
	// the grace period.
	LastObservedBlock uint64

	// Stalled marks a recoverable timeout waiting for a connection or a
	// confirmation. A retry event clears it.
	Stalled     bool
	StallReason string

	// FailureReason is set when the session enters the failed pseudo-state.
	FailureReason string

	// PeerConnection is the folded relay link state, present in p2pRelay mode
	// only. The peer relay coordinator owns it; this is a read-only copy.
	PeerConnection *interfaces.PeerConnection
}

// NewSession creates a session positioned at the first step of its sequence.
func NewSession(variant interfaces.RegistrationVariant, mode interfaces.CoordinationMode, role interfaces.ParticipantRole, registeree interfaces.WalletAddress) *Session {
	seq := SequenceFor(variant, mode)
	now := time.Now()
	return &Session{
		ID:         uuid.New(),
		CreatedAt:  now,
		UpdatedAt:  now,
		Variant:    variant,
		Mode:       mode,
		Role:       role,
		Registeree: registeree,
		Step:       seq[0],
		sequence:   seq,
	}
}

// CurrentStep returns the session's position in its sequence.
func (s *Session) CurrentStep() Step {
	return s.Step
}

// Sequence returns a copy of the session's full step order.
func (s *Session) Sequence() []Step {
	out := make([]Step, len(s.sequence))
	copy(out, s.sequence)
	return out
}

// Failed reports whether the session is in the terminal failed pseudo-state.
func (s *Session) Failed() bool {
	return s.Step == StepFailed
}

// Completed reports whether the session reached success.
func (s *Session) Completed() bool {
	return s.Step == StepSuccess
}

// PollsStatus reports whether the current step depends on registry status
// reads. Polling stops the moment the session leaves these steps.
func (s *Session) PollsStatus() bool {
	return s.Step == StepAcknowledgementPayment || s.Step == StepRegistrationPayment
}

// Clone returns a deep copy safe to hand outside the coordinating task.
func (s *Session) Clone() *Session {
	out := *s

	out.sequence = make([]Step, len(s.sequence))
	copy(out.sequence, s.sequence)

	if s.Acknowledgement != nil {
		ack := *s.Acknowledgement
		out.Acknowledgement = &ack
	}
	if s.Registration != nil {
		reg := *s.Registration
		out.Registration = &reg
	}
	if s.AcknowledgementSig != nil {
		sig := *s.AcknowledgementSig
		sig.Signature = append([]byte(nil), s.AcknowledgementSig.Signature...)
		out.AcknowledgementSig = &sig
	}
	if s.RegistrationSig != nil {
		sig := *s.RegistrationSig
		sig.Signature = append([]byte(nil), s.RegistrationSig.Signature...)
		out.RegistrationSig = &sig
	}
	if s.SelectedTransactions != nil {
		out.SelectedTransactions = append([]string(nil), s.SelectedTransactions...)
	}
	if s.PeerConnection != nil {
		conn := *s.PeerConnection
		conn.RelayPeerIDs = append([]string(nil), s.PeerConnection.RelayPeerIDs...)
		if s.PeerConnection.LatencyMillis != nil {
			latency := *s.PeerConnection.LatencyMillis
			conn.LatencyMillis = &latency
		}
		out.PeerConnection = &conn
	}

	return &out
}
