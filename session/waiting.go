package session

import "github.com/stolen-wallet-registry/registry-coordinator/interfaces"

// waitingKey selects one waiting-state message. The projection is a pure
// lookup on (step, mode, role); screens never branch on these ad hoc.
type waitingKey struct {
	step Step
	mode interfaces.CoordinationMode
	role interfaces.ParticipantRole
}

// waitingMessages covers the steps where one side waits on the other side or
// on the chain. Steps that only wait on the local user have no entry.
var waitingMessages = map[waitingKey]string{
	// Relayer-side projections: the relayer waits on the registeree's local
	// actions.
	{StepSelectTransactions, interfaces.ModeP2PRelay, interfaces.RoleRelayer}: "waiting for registeree to select transactions",
	{StepAcknowledgeSign, interfaces.ModeP2PRelay, interfaces.RoleRelayer}:    "waiting for registeree to sign acknowledgement",
	{StepRegisterSign, interfaces.ModeP2PRelay, interfaces.RoleRelayer}:       "waiting for registeree to sign registration",

	// Both sides of a p2p relay session wait on the connection.
	{StepWaitForConnection, interfaces.ModeP2PRelay, interfaces.RoleRelayer}: "waiting for a registeree connection",

	// Registeree-side projections in p2p relay mode: the registeree waits on
	// the relayer's transactions.
	{StepWaitForConnection, interfaces.ModeP2PRelay, interfaces.RoleRegisteree}:      "waiting for a relayer connection",
	{StepAcknowledgementPayment, interfaces.ModeP2PRelay, interfaces.RoleRegisteree}: "waiting for relayer to submit acknowledgement transaction",
	{StepRegistrationPayment, interfaces.ModeP2PRelay, interfaces.RoleRegisteree}:    "waiting for relayer to submit registration transaction",

	// Chain waits read the same for both sides in the local-payment modes.
	{StepAcknowledgementPayment, interfaces.ModeStandard, interfaces.RoleRegisteree}:  "waiting for acknowledgement transaction to confirm",
	{StepAcknowledgementPayment, interfaces.ModeSelfRelay, interfaces.RoleRegisteree}: "waiting for acknowledgement transaction to confirm",
	{StepRegistrationPayment, interfaces.ModeStandard, interfaces.RoleRegisteree}:     "waiting for registration transaction to confirm",
	{StepRegistrationPayment, interfaces.ModeSelfRelay, interfaces.RoleRegisteree}:    "waiting for registration transaction to confirm",

	// Relayer-side chain waits.
	{StepAcknowledgementPayment, interfaces.ModeP2PRelay, interfaces.RoleRelayer}: "waiting for acknowledgement transaction to confirm",
	{StepRegistrationPayment, interfaces.ModeP2PRelay, interfaces.RoleRelayer}:    "waiting for registration transaction to confirm",

	// The grace period waits on block time regardless of mode or role.
	{StepGracePeriod, interfaces.ModeStandard, interfaces.RoleRegisteree}:  "waiting for grace period to expire",
	{StepGracePeriod, interfaces.ModeSelfRelay, interfaces.RoleRegisteree}: "waiting for grace period to expire",
	{StepGracePeriod, interfaces.ModeP2PRelay, interfaces.RoleRegisteree}:  "waiting for grace period to expire",
	{StepGracePeriod, interfaces.ModeP2PRelay, interfaces.RoleRelayer}:     "waiting for grace period to expire",
}

// WaitingMessage returns the user-facing waiting description for a session
// position. ok is false when the step waits on the local user and shows no
// waiting state.
func WaitingMessage(step Step, mode interfaces.CoordinationMode, role interfaces.ParticipantRole) (string, bool) {
	msg, ok := waitingMessages[waitingKey{step, mode, role}]
	return msg, ok
}
