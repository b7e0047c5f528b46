package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stolen-wallet-registry/registry-coordinator/chains"
	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
	"github.com/stolen-wallet-registry/registry-coordinator/registry"
)

type stubGateways struct {
	fetcher interfaces.RegistryStatusFetcher
}

func (s stubGateways) GatewayFor(interfaces.ChainID) (interfaces.RegistryStatusFetcher, error) {
	return s.fetcher, nil
}

type stubBlocks struct {
	reader interfaces.BlockNumberReader
}

func (s stubBlocks) BlockReaderFor(interfaces.ChainID) (interfaces.BlockNumberReader, error) {
	return s.reader, nil
}

// stubPeers is a minimal PeerWatcher whose snapshots tests flip at will.
type stubPeers struct {
	mu    sync.Mutex
	conns map[uuid.UUID]interfaces.PeerConnection
}

func newStubPeers() *stubPeers {
	return &stubPeers{conns: make(map[uuid.UUID]interfaces.PeerConnection)}
}

func (s *stubPeers) Attach(id uuid.UUID, role interfaces.ParticipantRole, relayPeerIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[id] = interfaces.PeerConnection{
		LocalRole:    role,
		RelayPeerIDs: relayPeerIDs,
		Status:       interfaces.ConnectionConnecting,
	}
}

func (s *stubPeers) Snapshot(id uuid.UUID) (interfaces.PeerConnection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[id]
	return conn, ok
}

func (s *stubPeers) Detach(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

func (s *stubPeers) setConnected(id uuid.UUID, peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn := s.conns[id]
	conn.Status = interfaces.ConnectionConnected
	conn.RemotePeerID = peerID
	s.conns[id] = conn
}

func testManager(t *testing.T, cfg ManagerConfig, fetcher interfaces.RegistryStatusFetcher, reader interfaces.BlockNumberReader, peers PeerWatcher) *Manager {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	table := chains.Default()
	resolver := chains.NewResolver(table, log)

	m := NewManager(cfg, table, resolver, stubGateways{fetcher}, stubBlocks{reader}, peers, nil, log)
	t.Cleanup(m.Close)
	return m
}

func fastConfig() ManagerConfig {
	return ManagerConfig{
		PollInterval:     10 * time.Millisecond,
		PollTimeout:      time.Second,
		RelayWaitTimeout: time.Hour,
		ConfirmTimeout:   time.Hour,
	}
}

func stepOf(t *testing.T, m *Manager, id uuid.UUID) Step {
	t.Helper()
	sess, err := m.Get(id)
	require.NoError(t, err)
	return sess.CurrentStep()
}

func TestManagerDrivesStandardWalletSessionToSuccess(t *testing.T) {
	fetcher := new(registry.MockStatusFetcher)
	reader := new(registry.MockBlockReader)

	// The poll loop keeps reading until the chain reports each confirmation.
	fetcher.On("FetchStatus", mock.Anything, mock.Anything).Return(interfaces.RegistryStatusSnapshot{}, nil).Twice()
	fetcher.On("FetchStatus", mock.Anything, mock.Anything).Return(*confirmedAckSnapshot(), nil).Once()
	fetcher.On("FetchStatus", mock.Anything, mock.Anything).Return(*registeredSnapshot(testMessageID(7)), nil)
	reader.On("BlockNumber", mock.Anything).Return(uint64(105), nil).Once()
	reader.On("BlockNumber", mock.Anything).Return(uint64(110), nil)

	m := testManager(t, fastConfig(), fetcher, reader, nil)

	sess, err := m.CreateSession(CreateParams{
		Variant:       interfaces.VariantWallet,
		Mode:          interfaces.ModeStandard,
		Role:          interfaces.RoleRegisteree,
		Registeree:    interfaces.WalletAddress{0xaa},
		OriginChainID: 31338,
	})
	require.NoError(t, err)
	assert.Equal(t, interfaces.ChainID(31337), sess.HubChainID, "spoke resolves to its hub")
	require.Equal(t, StepAcknowledgeSign, sess.CurrentStep())

	ctx := context.Background()
	require.NoError(t, m.SubmitEvent(ctx, sess.ID, Event{Type: EventSignatureCompleted, Signature: liveSignature()}))
	require.NoError(t, m.SubmitEvent(ctx, sess.ID, Event{Type: EventPaymentSubmitted, TxHash: "0x01"}))
	require.Equal(t, StepAcknowledgementPayment, stepOf(t, m, sess.ID))

	require.Eventually(t, func() bool {
		return stepOf(t, m, sess.ID) == StepRegisterSign
	}, 2*time.Second, 5*time.Millisecond, "acknowledgement confirmation and grace expiry should advance the session")

	require.NoError(t, m.SubmitEvent(ctx, sess.ID, Event{Type: EventSignatureCompleted, Signature: liveSignature()}))
	require.NoError(t, m.SubmitEvent(ctx, sess.ID, Event{Type: EventPaymentSubmitted, TxHash: "0x02", MessageID: testMessageID(7)}))

	require.Eventually(t, func() bool {
		return stepOf(t, m, sess.ID) == StepSuccess
	}, 2*time.Second, 5*time.Millisecond)

	final, err := m.Get(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, final.Registration, "registration populated only from the on-chain record")
	assert.Equal(t, testMessageID(7), final.Registration.CrossChainMessageID)
	assert.NotNil(t, final.Acknowledgement)
}

func TestManagerRejectsUnknownSpoke(t *testing.T) {
	m := testManager(t, fastConfig(), new(registry.MockStatusFetcher), new(registry.MockBlockReader), nil)

	_, err := m.CreateSession(CreateParams{
		Variant:       interfaces.VariantWallet,
		Mode:          interfaces.ModeStandard,
		Role:          interfaces.RoleRegisteree,
		Registeree:    interfaces.WalletAddress{0xaa},
		OriginChainID: 999999,
	})
	require.ErrorIs(t, err, chains.ErrNoHubMapping, "unknown spokes fail explicitly, never default to a hub")
}

func TestManagerGuardRejectionIsSynchronous(t *testing.T) {
	fetcher := new(registry.MockStatusFetcher)
	fetcher.On("FetchStatus", mock.Anything, mock.Anything).Return(interfaces.RegistryStatusSnapshot{}, nil)
	m := testManager(t, fastConfig(), fetcher, new(registry.MockBlockReader), nil)

	sess, err := m.CreateSession(CreateParams{
		Variant:       interfaces.VariantWallet,
		Mode:          interfaces.ModeStandard,
		Role:          interfaces.RoleRegisteree,
		Registeree:    interfaces.WalletAddress{0xaa},
		OriginChainID: 31337,
	})
	require.NoError(t, err)

	err = m.SubmitEvent(context.Background(), sess.ID, Event{Type: EventPaymentSubmitted})
	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, ReasonWrongStep, tErr.Reason)
}

func TestManagerStallAndRetry(t *testing.T) {
	fetcher := new(registry.MockStatusFetcher)
	fetcher.On("FetchStatus", mock.Anything, mock.Anything).Return(interfaces.RegistryStatusSnapshot{}, nil)

	cfg := fastConfig()
	cfg.ConfirmTimeout = 30 * time.Millisecond
	m := testManager(t, cfg, fetcher, new(registry.MockBlockReader), nil)

	sess, err := m.CreateSession(CreateParams{
		Variant:       interfaces.VariantWallet,
		Mode:          interfaces.ModeStandard,
		Role:          interfaces.RoleRegisteree,
		Registeree:    interfaces.WalletAddress{0xaa},
		OriginChainID: 31337,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.SubmitEvent(ctx, sess.ID, Event{Type: EventSignatureCompleted, Signature: liveSignature()}))
	require.NoError(t, m.SubmitEvent(ctx, sess.ID, Event{Type: EventPaymentSubmitted}))

	require.Eventually(t, func() bool {
		current, err := m.Get(sess.ID)
		require.NoError(t, err)
		return current.Stalled
	}, 2*time.Second, 5*time.Millisecond, "confirmation wait past its bound surfaces a stall")

	current, err := m.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "confirmation_timeout", current.StallReason)
	assert.False(t, current.Failed(), "a stall is recoverable, not a failure")

	require.NoError(t, m.SubmitEvent(ctx, sess.ID, Event{Type: EventRetry}))
	current, err = m.Get(sess.ID)
	require.NoError(t, err)
	assert.False(t, current.Stalled)
}

func TestManagerP2PWaitForConnection(t *testing.T) {
	fetcher := new(registry.MockStatusFetcher)
	fetcher.On("FetchStatus", mock.Anything, mock.Anything).Return(interfaces.RegistryStatusSnapshot{}, nil)
	peers := newStubPeers()
	m := testManager(t, fastConfig(), fetcher, new(registry.MockBlockReader), peers)

	sess, err := m.CreateSession(CreateParams{
		Variant:       interfaces.VariantWallet,
		Mode:          interfaces.ModeP2PRelay,
		Role:          interfaces.RoleRegisteree,
		Registeree:    interfaces.WalletAddress{0xaa},
		OriginChainID: 31337,
		RelayPeerIDs:  []string{"12D3KooWRelayer"},
	})
	require.NoError(t, err)
	require.NotNil(t, sess.PeerConnection)
	assert.Equal(t, interfaces.ConnectionConnecting, sess.PeerConnection.Status)

	ctx := context.Background()
	require.NoError(t, m.SubmitEvent(ctx, sess.ID, Event{Type: EventSignatureCompleted, Signature: liveSignature()}))
	require.Equal(t, StepWaitForConnection, stepOf(t, m, sess.ID))

	// The step holds until the coordinator reports the link open.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, StepWaitForConnection, stepOf(t, m, sess.ID))

	peers.setConnected(sess.ID, "12D3KooWRelayer")
	require.Eventually(t, func() bool {
		return stepOf(t, m, sess.ID) == StepAcknowledgementPayment
	}, 2*time.Second, 5*time.Millisecond)

	current, err := m.Get(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, current.PeerConnection)
	assert.Equal(t, "12D3KooWRelayer", current.PeerConnection.RemotePeerID)
}

func TestManagerTeardown(t *testing.T) {
	fetcher := new(registry.MockStatusFetcher)
	fetcher.On("FetchStatus", mock.Anything, mock.Anything).Return(interfaces.RegistryStatusSnapshot{}, nil)
	peers := newStubPeers()
	m := testManager(t, fastConfig(), fetcher, new(registry.MockBlockReader), peers)

	sess, err := m.CreateSession(CreateParams{
		Variant:       interfaces.VariantWallet,
		Mode:          interfaces.ModeP2PRelay,
		Role:          interfaces.RoleRegisteree,
		Registeree:    interfaces.WalletAddress{0xaa},
		OriginChainID: 31337,
		RelayPeerIDs:  []string{"12D3KooWRelayer"},
	})
	require.NoError(t, err)

	require.NoError(t, m.Teardown(sess.ID))

	_, err = m.Get(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, ok := peers.Snapshot(sess.ID)
	assert.False(t, ok, "teardown discards the peer connection")

	// Tearing down twice reports not-found rather than doing anything.
	assert.ErrorIs(t, m.Teardown(sess.ID), ErrSessionNotFound)
}

func TestManagerStaleResultsNeverApply(t *testing.T) {
	// A poll issued for the acknowledgement step whose result arrives after
	// the session moved on must not mutate the session. The registered
	// snapshot below would complete the registration-payment step if it were
	// (incorrectly) applied there with a matching message id; deliver it
	// under the acknowledgement step's generation instead and verify it is
	// dropped.
	entered := make(chan struct{})
	release := make(chan struct{})
	fetcher := new(registry.MockStatusFetcher)
	fetcher.On("FetchStatus", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(*registeredSnapshot(testMessageID(7)), nil).Once()
	fetcher.On("FetchStatus", mock.Anything, mock.Anything).Return(interfaces.RegistryStatusSnapshot{}, nil)

	reader := new(registry.MockBlockReader)
	reader.On("BlockNumber", mock.Anything).Return(uint64(90), nil)

	cfg := fastConfig()
	m := testManager(t, cfg, fetcher, reader, nil)

	sess, err := m.CreateSession(CreateParams{
		Variant:       interfaces.VariantWallet,
		Mode:          interfaces.ModeStandard,
		Role:          interfaces.RoleRegisteree,
		Registeree:    interfaces.WalletAddress{0xaa},
		OriginChainID: 31337,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.SubmitEvent(ctx, sess.ID, Event{Type: EventSignatureCompleted, Signature: liveSignature()}))
	require.NoError(t, m.SubmitEvent(ctx, sess.ID, Event{Type: EventPaymentSubmitted}))

	// Wait until the blocked poll is in flight, then move the session forward
	// past the acknowledgement wait by hand-feeding the confirmation.
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("poll never started")
	}

	require.NoError(t, m.SubmitEvent(ctx, sess.ID, Event{Type: EventStatusSnapshot, Snapshot: confirmedAckSnapshot()}))
	require.Equal(t, StepGracePeriod, stepOf(t, m, sess.ID))

	// Release the stale poll; its generation predates the step change.
	close(release)
	time.Sleep(50 * time.Millisecond)

	current, err := m.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StepGracePeriod, current.CurrentStep(), "stale poll result must not advance the session")
	assert.Nil(t, current.Registration)
}
