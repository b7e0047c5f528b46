package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/stolen-wallet-registry/registry-coordinator/chains"
	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
	"github.com/stolen-wallet-registry/registry-coordinator/metrics"
)

// ErrSessionNotFound is returned for operations on unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// PeerWatcher is the folded relay connection state the manager reads for
// p2pRelay sessions. The peer relay coordinator implements it and remains the
// single writer of the underlying state.
type PeerWatcher interface {
	// Attach starts tracking a relay connection for a session.
	Attach(sessionID uuid.UUID, role interfaces.ParticipantRole, relayPeerIDs []string)

	// Snapshot returns a copy of the session's current connection state.
	Snapshot(sessionID uuid.UUID) (interfaces.PeerConnection, bool)

	// Detach discards the session's connection state.
	Detach(sessionID uuid.UUID)
}

// ManagerConfig bounds the manager's polling and stall behavior.
type ManagerConfig struct {
	// PollInterval is the cadence of status polls, block reads and relay
	// connection checks.
	PollInterval time.Duration

	// PollTimeout bounds one batched status read or block read.
	PollTimeout time.Duration

	// RelayWaitTimeout is how long wait-for-connection may run before the
	// session surfaces a recoverable stall.
	RelayWaitTimeout time.Duration

	// ConfirmTimeout is how long a payment confirmation step may run before
	// the session surfaces a recoverable stall.
	ConfirmTimeout time.Duration
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 15 * time.Second
	}
	if c.RelayWaitTimeout <= 0 {
		c.RelayWaitTimeout = 10 * time.Minute
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 15 * time.Minute
	}
	return c
}

// CreateParams describes a new registration session.
type CreateParams struct {
	Variant       interfaces.RegistrationVariant
	Mode          interfaces.CoordinationMode
	Role          interfaces.ParticipantRole
	Registeree    interfaces.WalletAddress
	OriginChainID interfaces.ChainID

	// RelayPeerIDs lists the trusted relay peers for p2pRelay sessions.
	RelayPeerIDs []string
}

// Manager owns every live session. Each session is driven by exactly one
// coordinating goroutine; no two steps of one session ever execute
// concurrently. External callers hand in events and read copies.
type Manager struct {
	cfg      ManagerConfig
	table    *chains.Config
	resolver *chains.Resolver
	gateways interfaces.StatusGatewayFactory
	blocks   interfaces.BlockReaderSource
	peers    PeerWatcher
	machine  *Machine
	recorder *metrics.Recorder
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[uuid.UUID]*runner
}

// NewManager creates a session manager. The peer watcher and recorder may be
// nil; p2pRelay sessions are rejected without a watcher.
func NewManager(cfg ManagerConfig, table *chains.Config, resolver *chains.Resolver, gateways interfaces.StatusGatewayFactory, blocks interfaces.BlockReaderSource, peers PeerWatcher, recorder *metrics.Recorder, log *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg.withDefaults(),
		table:    table,
		resolver: resolver,
		gateways: gateways,
		blocks:   blocks,
		peers:    peers,
		machine:  NewMachine(log),
		recorder: recorder,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[uuid.UUID]*runner),
	}
}

// CreateSession validates the parameters, resolves the chain topology and
// starts the session's coordinating task. An origin chain without a hub
// mapping fails here with chains.ErrNoHubMapping; it is never defaulted.
func (m *Manager) CreateSession(params CreateParams) (*Session, error) {
	if err := params.Variant.Validate(); err != nil {
		return nil, err
	}
	if err := params.Mode.Validate(); err != nil {
		return nil, err
	}
	if err := params.Role.Validate(); err != nil {
		return nil, err
	}
	if params.Mode == interfaces.ModeP2PRelay && m.peers == nil {
		return nil, errors.New("p2pRelay mode requires the peer relay coordinator")
	}

	resolution, err := m.resolver.Resolve(params.OriginChainID)
	if err != nil {
		return nil, err
	}

	contract, err := m.table.RegistryContract(params.OriginChainID)
	if err != nil {
		return nil, fmt.Errorf("resolving registry contract: %w", err)
	}

	ackFetcher, err := m.gateways.GatewayFor(params.OriginChainID)
	if err != nil {
		return nil, fmt.Errorf("origin chain gateway: %w", err)
	}
	regFetcher, err := m.gateways.GatewayFor(resolution.Hub)
	if err != nil {
		return nil, fmt.Errorf("hub chain gateway: %w", err)
	}
	blockReader, err := m.blocks.BlockReaderFor(params.OriginChainID)
	if err != nil {
		return nil, fmt.Errorf("origin chain block reader: %w", err)
	}

	sess := NewSession(params.Variant, params.Mode, params.Role, params.Registeree)
	sess.OriginChainID = params.OriginChainID
	sess.HubChainID = resolution.Hub
	sess.ContractAddress = contract

	if params.Mode == interfaces.ModeP2PRelay {
		m.peers.Attach(sess.ID, params.Role, params.RelayPeerIDs)
		if snap, ok := m.peers.Snapshot(sess.ID); ok {
			sess.PeerConnection = &snap
		}
	}

	r := &runner{
		m:           m,
		sess:        sess,
		requests:    make(chan eventRequest),
		results:     make(chan taggedEvent, 4),
		done:        make(chan struct{}),
		ackFetcher:  ackFetcher,
		regFetcher:  regFetcher,
		blockReader: blockReader,
		stepEntered: time.Now(),
	}

	runCtx, runCancel := context.WithCancel(m.ctx)
	r.cancel = runCancel

	m.mu.Lock()
	m.sessions[sess.ID] = r
	count := len(m.sessions)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r.run(runCtx)
	}()

	if m.recorder != nil {
		m.recorder.ObserveSessionStarted(string(params.Variant), string(params.Mode))
		m.recorder.SetActiveSessions(count)
	}
	m.log.Info("Session created",
		"sessionID", sess.ID,
		"variant", string(params.Variant),
		"mode", string(params.Mode),
		"role", string(params.Role),
		"originChainID", params.OriginChainID.String(),
		"hubChainID", resolution.Hub.String())

	return sess.Clone(), nil
}

// Get returns a copy of a session.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	r, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return r.snapshot(), nil
}

// SubmitEvent hands an event to the session's coordinating task and waits for
// the machine's synchronous accept/reject decision.
func (m *Manager) SubmitEvent(ctx context.Context, id uuid.UUID, ev Event) error {
	m.mu.RLock()
	r, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	req := eventRequest{ev: ev, reply: make(chan error, 1)}
	select {
	case r.requests <- req:
	case <-r.done:
		return ErrSessionNotFound
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Teardown abandons a session: its task stops, outstanding polls are
// cancelled and its peer connection is discarded. Tearing down twice is a
// no-op.
func (m *Manager) Teardown(id uuid.UUID) error {
	m.mu.Lock()
	r, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	r.cancel()
	if m.peers != nil {
		m.peers.Detach(id)
	}
	if m.recorder != nil {
		m.recorder.SetActiveSessions(count)
	}
	m.log.Info("Session torn down", "sessionID", id)
	return nil
}

// Close stops every session task and waits for them to exit.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	for id := range m.sessions {
		if m.peers != nil {
			m.peers.Detach(id)
		}
		delete(m.sessions, id)
	}
	m.mu.Unlock()
}

type eventRequest struct {
	ev    Event
	reply chan error
}

// taggedEvent carries an asynchronous task result together with the session
// generation it was issued under. Results from a superseded generation are
// dropped, so a late poll can never force a stale transition.
type taggedEvent struct {
	generation uint64
	ev         Event
}

// runner is one session's coordinating task and the only writer of its
// session state.
type runner struct {
	m *Manager

	mu   sync.Mutex
	sess *Session

	cancel   context.CancelFunc
	requests chan eventRequest
	results  chan taggedEvent
	done     chan struct{}

	// generation is bumped on every step change and retry; outstanding task
	// results from earlier generations are discarded on arrival.
	generation atomic.Uint64

	// pollInflight coalesces polls: while one batched read is outstanding, no
	// new one is issued.
	pollInflight atomic.Bool

	pollMu     sync.Mutex
	pollCancel context.CancelFunc

	ackFetcher  interfaces.RegistryStatusFetcher
	regFetcher  interfaces.RegistryStatusFetcher
	blockReader interfaces.BlockNumberReader

	stepEntered time.Time
}

func (r *runner) run(ctx context.Context) {
	ticker := time.NewTicker(r.m.cfg.PollInterval)
	defer ticker.Stop()
	defer r.cancelOutstandingPoll()
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.requests:
			req.reply <- r.apply(req.ev)
		case res := <-r.results:
			if res.generation != r.generation.Load() {
				r.m.log.Debug("Dropping stale task result", "sessionID", r.sessionID(), "generation", res.generation)
				continue
			}
			// Observation errors are machine-internal; nothing to surface.
			_ = r.apply(res.ev)
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *runner) sessionID() uuid.UUID {
	return r.sess.ID
}

func (r *runner) snapshot() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess.Clone()
}

// apply runs one event through the machine and maintains the generation and
// stall bookkeeping around step changes.
func (r *runner) apply(ev Event) error {
	r.mu.Lock()
	prev := r.sess.Step
	err := r.m.machine.Advance(r.sess, ev)
	step := r.sess.Step
	failureReason := r.sess.FailureReason
	r.mu.Unlock()

	rec := r.m.recorder
	if err != nil {
		var tErr *TransitionError
		if rec != nil && errors.As(err, &tErr) {
			rec.ObserveTransitionReject(string(tErr.Reason))
		}
		return err
	}

	if ev.Type == EventRetry {
		// A retry re-arms the stall clock and supersedes anything in flight.
		r.generation.Add(1)
		r.cancelOutstandingPoll()
		r.mu.Lock()
		r.stepEntered = time.Now()
		r.mu.Unlock()
		return nil
	}

	if step != prev {
		r.generation.Add(1)
		r.cancelOutstandingPoll()
		r.mu.Lock()
		r.stepEntered = time.Now()
		r.mu.Unlock()

		if rec != nil {
			rec.ObserveStepTransition(string(step))
			switch step {
			case StepSuccess:
				rec.ObserveSessionCompleted()
			case StepFailed:
				rec.ObserveSessionFailed(failureReason)
			}
		}
	}
	return nil
}

// tick issues the suspension-point work the current step depends on.
func (r *runner) tick(ctx context.Context) {
	r.mu.Lock()
	step := r.sess.Step
	stalled := r.sess.Stalled
	entered := r.stepEntered
	mode := r.sess.Mode
	r.mu.Unlock()

	if mode == interfaces.ModeP2PRelay {
		r.refreshPeerConnection(step)
	}

	switch step {
	case StepAcknowledgementPayment:
		r.issuePoll(ctx, r.ackFetcher)
		r.checkStall(stalled, entered, r.m.cfg.ConfirmTimeout, "confirmation_timeout")
	case StepRegistrationPayment:
		r.issuePoll(ctx, r.regFetcher)
		r.checkStall(stalled, entered, r.m.cfg.ConfirmTimeout, "confirmation_timeout")
	case StepGracePeriod:
		r.issueBlockRead(ctx)
	case StepWaitForConnection:
		r.checkStall(stalled, entered, r.m.cfg.RelayWaitTimeout, "relay_wait_timeout")
	}
}

// issuePoll starts one batched status read unless one is already in flight; a
// new poll request while one is outstanding is coalesced, not queued.
func (r *runner) issuePoll(ctx context.Context, fetcher interfaces.RegistryStatusFetcher) {
	if !r.pollInflight.CompareAndSwap(false, true) {
		return
	}

	gen := r.generation.Load()
	pollCtx, cancel := context.WithTimeout(ctx, r.m.cfg.PollTimeout)
	r.setPollCancel(cancel)

	r.mu.Lock()
	registeree := r.sess.Registeree
	r.mu.Unlock()

	go func() {
		defer cancel()
		defer r.pollInflight.Store(false)

		started := time.Now()
		snap, err := fetcher.FetchStatus(pollCtx, registeree)
		if r.m.recorder != nil {
			result := "ok"
			switch {
			case err != nil:
				result = "error"
			case snap.Degraded:
				result = "degraded"
			}
			r.m.recorder.ObserveStatusPoll(result, time.Since(started))
		}
		if err != nil {
			// Round-trip failure: nothing learned, retry next cycle.
			r.m.log.Debug("Status poll failed", "sessionID", r.sessionID(), "err", err)
			return
		}

		select {
		case r.results <- taggedEvent{generation: gen, ev: Event{Type: EventStatusSnapshot, Snapshot: &snap}}:
		case <-ctx.Done():
		}
	}()
}

// issueBlockRead reads the origin chain head, reusing the poll in-flight bit
// so block reads and status reads never overlap either.
func (r *runner) issueBlockRead(ctx context.Context) {
	if !r.pollInflight.CompareAndSwap(false, true) {
		return
	}

	gen := r.generation.Load()
	readCtx, cancel := context.WithTimeout(ctx, r.m.cfg.PollTimeout)
	r.setPollCancel(cancel)

	go func() {
		defer cancel()
		defer r.pollInflight.Store(false)

		block, err := r.blockReader.BlockNumber(readCtx)
		if err != nil {
			r.m.log.Debug("Block read failed", "sessionID", r.sessionID(), "err", err)
			return
		}

		select {
		case r.results <- taggedEvent{generation: gen, ev: Event{Type: EventBlockObserved, BlockNumber: block}}:
		case <-ctx.Done():
		}
	}()
}

// refreshPeerConnection copies the coordinator's folded connection state into
// the session and, while waiting for a connection, advances on an observed
// open link.
func (r *runner) refreshPeerConnection(step Step) {
	if r.m.peers == nil {
		return
	}
	snap, ok := r.m.peers.Snapshot(r.sessionID())
	if !ok {
		return
	}

	r.mu.Lock()
	r.sess.PeerConnection = &snap
	r.mu.Unlock()

	if step == StepWaitForConnection && snap.Status == interfaces.ConnectionConnected {
		_ = r.apply(Event{Type: EventConnectionOpen})
	}
}

// checkStall surfaces a recoverable stalled state once the step has waited
// past its bound. Stalling is not failure; a retry clears it.
func (r *runner) checkStall(alreadyStalled bool, entered time.Time, bound time.Duration, reason string) {
	if alreadyStalled || time.Since(entered) < bound {
		return
	}

	r.mu.Lock()
	r.sess.Stalled = true
	r.sess.StallReason = reason
	r.sess.UpdatedAt = time.Now()
	step := r.sess.Step
	r.mu.Unlock()

	if r.m.recorder != nil {
		r.m.recorder.ObserveSessionStall(reason)
	}
	r.m.log.Warn("Session stalled", "sessionID", r.sessionID(), "step", string(step), "reason", reason)
}

func (r *runner) setPollCancel(cancel context.CancelFunc) {
	r.pollMu.Lock()
	r.pollCancel = cancel
	r.pollMu.Unlock()
}

// cancelOutstandingPoll cancels the pending poll, if any. Cancelling twice or
// after natural completion is a no-op.
func (r *runner) cancelOutstandingPoll() {
	r.pollMu.Lock()
	cancel := r.pollCancel
	r.pollMu.Unlock()
	if cancel != nil {
		cancel()
	}
}
