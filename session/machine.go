package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/stolen-wallet-registry/registry-coordinator/graceperiod"
	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
)

// EventType names the inputs a session reacts to. Request events are issued
// by the UI or wallet layer and are rejected with a TransitionError when their
// guard is unmet. Observation events fold chain and peer state into the
// session and advance it opportunistically; an observation that does not
// satisfy a guard is simply not enough information yet, never a violation.
type EventType string

const (
	// EventTransactionsSelected attaches the chosen transactions to a
	// transaction report. Request event.
	EventTransactionsSelected EventType = "transactions-selected"

	// EventSignatureCompleted delivers a signature from the wallet layer.
	// Request event.
	EventSignatureCompleted EventType = "signature-completed"

	// EventPaymentSubmitted reports that a transaction was handed to the
	// chain, locally or by the remote relayer. Request event at pay steps; at
	// confirmation steps it only records the submission details.
	EventPaymentSubmitted EventType = "payment-submitted"

	// EventAdvanceRequested asks to move to the next step explicitly. The
	// entry guard of the next step is evaluated against current session
	// state. Request event.
	EventAdvanceRequested EventType = "advance-requested"

	// EventRetry clears a stalled session and re-arms its timers. Request
	// event.
	EventRetry EventType = "retry"

	// EventConnectionOpen reports that the peer relay link was observed open.
	// Observation event.
	EventConnectionOpen EventType = "connection-open"

	// EventStatusSnapshot delivers the result of a batched registry read.
	// Observation event.
	EventStatusSnapshot EventType = "status-snapshot"

	// EventBlockObserved delivers a chain head block number. Observation
	// event.
	EventBlockObserved EventType = "block-observed"

	// EventFatal moves the session to the terminal failed pseudo-state.
	EventFatal EventType = "fatal"
)

// Event is one input to the state machine. Only the fields relevant to its
// type are set.
type Event struct {
	Type EventType

	Signature    *interfaces.SignedPayload
	TxHash       string
	MessageID    interfaces.MessageID
	Transactions []string
	Snapshot     *interfaces.RegistryStatusSnapshot
	BlockNumber  uint64
	Reason       string
}

// Reason is a machine-readable transition rejection code.
type Reason string

const (
	ReasonWrongStep        Reason = "wrong_step"
	ReasonSessionFailed    Reason = "session_failed"
	ReasonSignatureMissing Reason = "signature_missing"
	ReasonSignatureExpired Reason = "signature_expired"
	ReasonEmptySelection   Reason = "empty_selection"
	ReasonAckNotConfirmed  Reason = "ack_not_confirmed"
	ReasonGraceNotExpired  Reason = "grace_not_expired"
	ReasonNotRegistered    Reason = "not_registered"
	ReasonMessageMismatch  Reason = "message_id_mismatch"
	ReasonNoConnection     Reason = "connection_not_open"
)

// TransitionError rejects a requested transition whose guard is unmet.
type TransitionError struct {
	Reason Reason
	Step   Step
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition rejected at step %s: %s", e.Step, e.Reason)
}

func rejected(s *Session, reason Reason) error {
	return &TransitionError{Reason: reason, Step: s.Step}
}

// Machine advances sessions through their step sequences. It performs no side
// effects of its own: it decides which action is permitted, folds
// observations into session state and rejects guard violations. Signing and
// submission belong to the external wallet collaborator.
type Machine struct {
	log *slog.Logger

	// now is the signature expiry clock, replaceable in tests.
	now func() time.Time
}

// NewMachine creates a state machine.
func NewMachine(log *slog.Logger) *Machine {
	return &Machine{log: log, now: time.Now}
}

// Advance applies one event to a session. A nil return means the event was
// accepted; the session may or may not have moved a step. A TransitionError
// means a request event was rejected with its guard's reason code. Fatal
// errors move the session to the failed pseudo-state and are reported through
// the returned TransitionError as well.
func (m *Machine) Advance(s *Session, ev Event) error {
	if s.Failed() {
		return rejected(s, ReasonSessionFailed)
	}

	switch ev.Type {
	case EventFatal:
		m.Fail(s, ev.Reason)
		return nil
	case EventRetry:
		if s.Stalled {
			m.log.Info("Session retry requested", "sessionID", s.ID, "step", string(s.Step), "stallReason", s.StallReason)
		}
		s.Stalled = false
		s.StallReason = ""
		s.UpdatedAt = m.now()
		return nil
	}

	switch s.Step {
	case StepSelectTransactions:
		return m.applySelectTransactions(s, ev)
	case StepAcknowledgeSign, StepRegisterSign:
		return m.applySignature(s, ev)
	case StepAcknowledgePay, StepSwitchAndPayOne:
		return m.applyAcknowledgementPay(s, ev)
	case StepRegisterPay, StepSwitchAndPayTwo:
		return m.applyRegistrationPay(s, ev)
	case StepWaitForConnection:
		return m.applyWaitForConnection(s, ev)
	case StepAcknowledgementPayment:
		return m.applyAcknowledgementPayment(s, ev)
	case StepGracePeriod:
		return m.applyGracePeriod(s, ev)
	case StepRegistrationPayment:
		return m.applyRegistrationPayment(s, ev)
	default:
		return rejected(s, ReasonWrongStep)
	}
}

// Fail moves the session to the terminal failed pseudo-state. There is no
// forward edge out of it; a new session must be started.
func (m *Machine) Fail(s *Session, reason string) {
	if s.Failed() {
		return
	}
	m.log.Warn("Session failed", "sessionID", s.ID, "step", string(s.Step), "reason", reason)
	s.Step = StepFailed
	s.FailureReason = reason
	s.Stalled = false
	s.StallReason = ""
	s.UpdatedAt = m.now()
}

func (m *Machine) applySelectTransactions(s *Session, ev Event) error {
	if ev.Type != EventTransactionsSelected {
		return m.ignoreOrReject(s, ev)
	}
	if len(ev.Transactions) == 0 {
		return rejected(s, ReasonEmptySelection)
	}
	s.SelectedTransactions = append([]string(nil), ev.Transactions...)
	m.moveForward(s)
	return nil
}

func (m *Machine) applySignature(s *Session, ev Event) error {
	if ev.Type != EventSignatureCompleted {
		return m.ignoreOrReject(s, ev)
	}
	if ev.Signature == nil || len(ev.Signature.Signature) == 0 {
		return rejected(s, ReasonSignatureMissing)
	}

	if s.Step == StepAcknowledgeSign {
		s.AcknowledgementSig = ev.Signature
	} else {
		s.RegistrationSig = ev.Signature
	}
	m.moveForward(s)
	return nil
}

// applyAcknowledgementPay handles the acknowledgement pay steps. Entry into a
// pay action requires the prior signature present and unexpired; a signature
// found expired at pay time is past recovery and fatal.
func (m *Machine) applyAcknowledgementPay(s *Session, ev Event) error {
	if ev.Type != EventPaymentSubmitted {
		return m.ignoreOrReject(s, ev)
	}
	if err := m.requireLiveSignature(s, s.AcknowledgementSig); err != nil {
		return err
	}
	if ev.TxHash != "" {
		s.AcknowledgementTxHash = ev.TxHash
	}
	m.moveForward(s)
	return nil
}

func (m *Machine) applyRegistrationPay(s *Session, ev Event) error {
	if ev.Type != EventPaymentSubmitted {
		return m.ignoreOrReject(s, ev)
	}
	if err := m.requireLiveSignature(s, s.RegistrationSig); err != nil {
		return err
	}
	if ev.TxHash != "" {
		s.RegistrationTxHash = ev.TxHash
	}
	s.SubmittedMessageID = ev.MessageID
	m.moveForward(s)
	return nil
}

func (m *Machine) requireLiveSignature(s *Session, sig *interfaces.SignedPayload) error {
	if sig == nil || len(sig.Signature) == 0 {
		return rejected(s, ReasonSignatureMissing)
	}
	if sig.ExpiredAt(m.now()) {
		err := rejected(s, ReasonSignatureExpired)
		m.Fail(s, string(ReasonSignatureExpired))
		return err
	}
	return nil
}

func (m *Machine) applyWaitForConnection(s *Session, ev Event) error {
	switch ev.Type {
	case EventConnectionOpen:
		m.moveForward(s)
		return nil
	case EventAdvanceRequested:
		return rejected(s, ReasonNoConnection)
	default:
		return m.ignoreOrReject(s, ev)
	}
}

// applyAcknowledgementPayment waits for the acknowledgement to confirm
// on-chain. Confirmation is only ever taken from a gateway snapshot, never
// assumed because a local submit call succeeded.
func (m *Machine) applyAcknowledgementPayment(s *Session, ev Event) error {
	switch ev.Type {
	case EventStatusSnapshot:
		if ev.Snapshot == nil {
			return nil
		}
		if ev.Snapshot.Pending && ev.Snapshot.Acknowledgement != nil {
			s.Acknowledgement = ev.Snapshot.Acknowledgement
			m.moveForward(s)
		}
		return nil
	case EventPaymentSubmitted:
		// The remote relayer notifying us of its submission. Informational;
		// confirmation still comes from the chain.
		if ev.TxHash != "" {
			s.AcknowledgementTxHash = ev.TxHash
		}
		return nil
	case EventAdvanceRequested:
		if s.Acknowledgement == nil {
			return rejected(s, ReasonAckNotConfirmed)
		}
		m.moveForward(s)
		return nil
	default:
		return m.ignoreOrReject(s, ev)
	}
}

func (m *Machine) applyGracePeriod(s *Session, ev Event) error {
	switch ev.Type {
	case EventBlockObserved:
		s.LastObservedBlock = ev.BlockNumber
		if s.Acknowledgement == nil {
			return nil
		}
		s.GraceStatus = graceperiod.StatusAt(*s.Acknowledgement, ev.BlockNumber)
		if s.GraceStatus == graceperiod.StatusExpired {
			m.moveForward(s)
		}
		return nil
	case EventAdvanceRequested:
		if s.GraceStatus != graceperiod.StatusExpired {
			return rejected(s, ReasonGraceNotExpired)
		}
		m.moveForward(s)
		return nil
	default:
		return m.ignoreOrReject(s, ev)
	}
}

// applyRegistrationPayment waits for the registration to confirm. Success
// additionally requires the on-chain message id to match what this session
// submitted, so a stale registration from an earlier attempt is never
// mistaken for this one.
func (m *Machine) applyRegistrationPayment(s *Session, ev Event) error {
	switch ev.Type {
	case EventStatusSnapshot:
		if ev.Snapshot == nil || !ev.Snapshot.Registered || ev.Snapshot.Registration == nil {
			return nil
		}
		if s.SubmittedMessageID.IsZero() {
			// Registered, but we have not learned our own submission's message
			// id yet. Keep waiting rather than claim someone else's entry.
			return nil
		}
		if ev.Snapshot.Registration.CrossChainMessageID != s.SubmittedMessageID {
			m.log.Warn("Observed registration with mismatched message id",
				"sessionID", s.ID,
				"onchain", ev.Snapshot.Registration.CrossChainMessageID.String(),
				"submitted", s.SubmittedMessageID.String())
			return nil
		}
		s.Registration = ev.Snapshot.Registration
		m.moveForward(s)
		return nil
	case EventPaymentSubmitted:
		// In relayed modes the submission details arrive over the relay link
		// after this step has been entered.
		if ev.TxHash != "" {
			s.RegistrationTxHash = ev.TxHash
		}
		if !ev.MessageID.IsZero() {
			s.SubmittedMessageID = ev.MessageID
		}
		return nil
	case EventAdvanceRequested:
		if s.Registration == nil {
			return rejected(s, ReasonNotRegistered)
		}
		m.moveForward(s)
		return nil
	default:
		return m.ignoreOrReject(s, ev)
	}
}

// ignoreOrReject absorbs stray observations and rejects misplaced requests.
// A late poll result or block reading arriving after a step change carries no
// risk and no information; a user action at the wrong step is a violation.
func (m *Machine) ignoreOrReject(s *Session, ev Event) error {
	switch ev.Type {
	case EventStatusSnapshot, EventBlockObserved, EventConnectionOpen:
		return nil
	default:
		return rejected(s, ReasonWrongStep)
	}
}

func (m *Machine) moveForward(s *Session) {
	next, ok := nextStep(s.sequence, s.Step)
	if !ok {
		return
	}
	m.log.Debug("Session step advanced", "sessionID", s.ID, "from", string(s.Step), "to", string(next))
	s.Step = next
	s.Stalled = false
	s.StallReason = ""
	s.UpdatedAt = m.now()
}
