package session

import (
	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
)

// Step is one position in a registration session's ordered sequence.
type Step string

const (
	// StepSelectTransactions chooses which transactions to attach to a
	// transaction report. Transaction variant only.
	StepSelectTransactions Step = "select-transactions"

	// StepAcknowledgeSign collects the registeree's acknowledgement signature.
	StepAcknowledgeSign Step = "acknowledge-and-sign"

	// StepAcknowledgePay submits the acknowledgement transaction from the
	// signing wallet. Standard mode only.
	StepAcknowledgePay Step = "acknowledge-and-pay"

	// StepSwitchAndPayOne submits the acknowledgement transaction from the
	// registeree's second wallet. Self-relay mode only.
	StepSwitchAndPayOne Step = "switch-and-pay-one"

	// StepWaitForConnection waits for an open peer connection to a trusted
	// relayer. P2P relay mode only.
	StepWaitForConnection Step = "wait-for-connection"

	// StepAcknowledgementPayment waits for the acknowledgement transaction to
	// confirm on-chain.
	StepAcknowledgementPayment Step = "acknowledgement-payment"

	// StepGracePeriod waits out the mandatory block-range delay between
	// acknowledgement and registration.
	StepGracePeriod Step = "grace-period"

	// StepRegisterSign collects the registeree's registration signature.
	StepRegisterSign Step = "register-and-sign"

	// StepRegisterPay submits the registration transaction from the signing
	// wallet. Standard mode only.
	StepRegisterPay Step = "register-and-pay"

	// StepSwitchAndPayTwo submits the registration transaction from the
	// registeree's second wallet. Self-relay mode only.
	StepSwitchAndPayTwo Step = "switch-and-pay-two"

	// StepRegistrationPayment waits for the registration to confirm on-chain.
	StepRegistrationPayment Step = "registration-payment"

	// StepSuccess is the terminal step of a completed registration.
	StepSuccess Step = "success"

	// StepFailed is the terminal pseudo-state entered on a fatal error. It is
	// not part of the ordered sequence and has no forward edge.
	StepFailed Step = "failed"
)

// capability tags a master-list step with the condition that includes it in a
// session's sequence. Modes elide non-matching steps from the one master list
// instead of branching into per-mode tables; a new mode toggles flags, it does
// not duplicate the sequence.
type capability uint8

const (
	// capAlways includes the step in every sequence.
	capAlways capability = iota

	// capLocalPay includes the step when the signer's wallet also pays.
	capLocalPay

	// capSwitchPay includes the step when the registeree pays from a second
	// wallet of their own.
	capSwitchPay

	// capRemotePay includes the step when a peer-connected relayer pays.
	capRemotePay

	// capSelectTransactions includes the step for transaction reports.
	capSelectTransactions
)

type stepSpec struct {
	step Step
	cap  capability
}

// masterSequence is the single ordered list every (variant, mode) sequence is
// derived from.
var masterSequence = []stepSpec{
	{StepSelectTransactions, capSelectTransactions},
	{StepAcknowledgeSign, capAlways},
	{StepAcknowledgePay, capLocalPay},
	{StepSwitchAndPayOne, capSwitchPay},
	{StepWaitForConnection, capRemotePay},
	{StepAcknowledgementPayment, capAlways},
	{StepGracePeriod, capAlways},
	{StepRegisterSign, capAlways},
	{StepRegisterPay, capLocalPay},
	{StepSwitchAndPayTwo, capSwitchPay},
	{StepRegistrationPayment, capAlways},
	{StepSuccess, capAlways},
}

func modeCapability(mode interfaces.CoordinationMode) capability {
	switch mode {
	case interfaces.ModeSelfRelay:
		return capSwitchPay
	case interfaces.ModeP2PRelay:
		return capRemotePay
	default:
		return capLocalPay
	}
}

// SequenceFor derives the ordered step sequence for a variant and mode from
// the master list.
func SequenceFor(variant interfaces.RegistrationVariant, mode interfaces.CoordinationMode) []Step {
	modeCap := modeCapability(mode)

	seq := make([]Step, 0, len(masterSequence))
	for _, spec := range masterSequence {
		switch spec.cap {
		case capAlways:
			seq = append(seq, spec.step)
		case capSelectTransactions:
			if variant == interfaces.VariantTransaction {
				seq = append(seq, spec.step)
			}
		default:
			if spec.cap == modeCap {
				seq = append(seq, spec.step)
			}
		}
	}
	return seq
}

// nextStep returns the step following current in the sequence. ok is false
// when current is the last step or not part of the sequence at all.
func nextStep(seq []Step, current Step) (Step, bool) {
	for i, step := range seq {
		if step == current && i+1 < len(seq) {
			return seq[i+1], true
		}
	}
	return "", false
}

// stepIndex returns the position of a step in the sequence, -1 if absent.
func stepIndex(seq []Step, step Step) int {
	for i, s := range seq {
		if s == step {
			return i
		}
	}
	return -1
}
