package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
)

func TestWaitingMessageProjection(t *testing.T) {
	msg, ok := WaitingMessage(StepAcknowledgementPayment, interfaces.ModeP2PRelay, interfaces.RoleRegisteree)
	require.True(t, ok)
	assert.Equal(t, "waiting for relayer to submit acknowledgement transaction", msg)

	msg, ok = WaitingMessage(StepAcknowledgeSign, interfaces.ModeP2PRelay, interfaces.RoleRelayer)
	require.True(t, ok)
	assert.Equal(t, "waiting for registeree to sign acknowledgement", msg)

	msg, ok = WaitingMessage(StepAcknowledgementPayment, interfaces.ModeStandard, interfaces.RoleRegisteree)
	require.True(t, ok)
	assert.Equal(t, "waiting for acknowledgement transaction to confirm", msg)
}

func TestWaitingMessageConnectionStepBothRoles(t *testing.T) {
	// wait-for-connection only exists in p2p relay mode, and both sides of
	// the session wait on it.
	msg, ok := WaitingMessage(StepWaitForConnection, interfaces.ModeP2PRelay, interfaces.RoleRegisteree)
	require.True(t, ok)
	assert.Equal(t, "waiting for a relayer connection", msg)

	msg, ok = WaitingMessage(StepWaitForConnection, interfaces.ModeP2PRelay, interfaces.RoleRelayer)
	require.True(t, ok)
	assert.Equal(t, "waiting for a registeree connection", msg)
}

func TestWaitingMessageAbsentForLocalActionSteps(t *testing.T) {
	// Steps that wait on the local user show no waiting state.
	_, ok := WaitingMessage(StepAcknowledgeSign, interfaces.ModeStandard, interfaces.RoleRegisteree)
	assert.False(t, ok)

	_, ok = WaitingMessage(StepAcknowledgePay, interfaces.ModeStandard, interfaces.RoleRegisteree)
	assert.False(t, ok)

	_, ok = WaitingMessage(StepSuccess, interfaces.ModeStandard, interfaces.RoleRegisteree)
	assert.False(t, ok)
}

func TestWaitingMessageCoversEveryWaitingStep(t *testing.T) {
	// Every chain- or counterparty-bound step has a projection for every
	// (mode, role) combination that can reach it.
	combos := []struct {
		mode interfaces.CoordinationMode
		role interfaces.ParticipantRole
	}{
		{interfaces.ModeStandard, interfaces.RoleRegisteree},
		{interfaces.ModeSelfRelay, interfaces.RoleRegisteree},
		{interfaces.ModeP2PRelay, interfaces.RoleRegisteree},
		{interfaces.ModeP2PRelay, interfaces.RoleRelayer},
	}

	for _, combo := range combos {
		for _, step := range []Step{StepAcknowledgementPayment, StepGracePeriod, StepRegistrationPayment} {
			_, ok := WaitingMessage(step, combo.mode, combo.role)
			assert.True(t, ok, "missing projection for (%s, %s, %s)", step, combo.mode, combo.role)
		}
	}
}
