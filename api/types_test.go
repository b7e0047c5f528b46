package api

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stolen-wallet-registry/registry-coordinator/chains"
	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
	"github.com/stolen-wallet-registry/registry-coordinator/session"
)

func testSession(t *testing.T) *session.Session {
	t.Helper()
	registeree, err := interfaces.NewWalletAddressFromHex("0x1111111111111111111111111111111111111111")
	require.NoError(t, err)

	sess := session.NewSession(interfaces.VariantWallet, interfaces.ModeStandard, interfaces.RoleRegisteree, registeree)
	sess.OriginChainID = 31338
	sess.HubChainID = 31337
	return sess
}

func TestNewSessionResponse(t *testing.T) {
	sess := testSession(t)

	resp := NewSessionResponse(sess, chains.Default())
	assert.Equal(t, sess.ID.String(), resp.ID)
	assert.Equal(t, uint64(31338), resp.OriginChainID)
	assert.Equal(t, uint64(31337), resp.HubChainID)
	assert.Equal(t, string(sess.Step), resp.Step)
	require.NotEmpty(t, resp.Sequence)
	assert.Equal(t, resp.Step, resp.Sequence[0])
	assert.Empty(t, resp.Waiting, "the first step waits on the local user")
	assert.Nil(t, resp.Grace)
	assert.Nil(t, resp.PeerConnection)
}

func TestNewSessionResponseGraceCountdown(t *testing.T) {
	sess := testSession(t)
	sess.Step = session.StepGracePeriod
	sess.Acknowledgement = &interfaces.AcknowledgementRecord{StartBlock: 100, ExpiryBlock: 110}
	sess.LastObservedBlock = 104

	resp := NewSessionResponse(sess, chains.Default())
	require.NotNil(t, resp.Grace)
	assert.Equal(t, uint64(6), resp.Grace.RemainingBlocks)
	assert.Greater(t, resp.Grace.EstimatedSeconds, 0.0, "the configured block time yields an ETA")

	waiting, ok := session.WaitingMessage(sess.Step, sess.Mode, sess.Role)
	require.True(t, ok)
	assert.Equal(t, waiting, resp.Waiting)
}

func TestNewSessionResponseExplorerLinks(t *testing.T) {
	sess := testSession(t)
	sess.AcknowledgementTxHash = "0xabc"

	// The local devnet has no explorer configured; the hash still surfaces.
	resp := NewSessionResponse(sess, chains.Default())
	require.NotNil(t, resp.AcknowledgementTx)
	assert.Equal(t, "0xabc", resp.AcknowledgementTx.TxHash)
	assert.Empty(t, resp.AcknowledgementTx.ExplorerURL)
	assert.Nil(t, resp.RegistrationTx)
}

func TestEventRequestToEvent(t *testing.T) {
	deadline := time.Now().Add(time.Hour).UTC()
	ev, err := EventRequest{
		Type:      string(session.EventSignatureCompleted),
		Signature: "0xdeadbeef",
		Deadline:  &deadline,
	}.ToEvent()
	require.NoError(t, err)
	assert.Equal(t, session.EventSignatureCompleted, ev.Type)
	require.NotNil(t, ev.Signature)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, ev.Signature.Signature)
	assert.Equal(t, deadline, ev.Signature.Deadline)

	ev, err = EventRequest{
		Type:      string(session.EventPaymentSubmitted),
		TxHash:    "0x01",
		MessageID: "0x11" + strings.Repeat("0", 62),
	}.ToEvent()
	require.NoError(t, err)
	assert.Equal(t, "0x01", ev.TxHash)
	assert.False(t, ev.MessageID.IsZero())

	_, err = EventRequest{Type: "signature-completed", Signature: "0xZZ"}.ToEvent()
	assert.Error(t, err)

	_, err = EventRequest{Type: "payment-submitted", MessageID: "0x1234"}.ToEvent()
	assert.Error(t, err, "a message id must be 32 bytes")
}
