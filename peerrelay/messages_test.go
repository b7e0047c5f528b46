package peerrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream records what was written to it.
type fakeStream struct {
	bytes.Buffer
	closed bool
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	streams []*fakeStream
	peers   []string
}

func (o *fakeOpener) OpenStream(_ context.Context, peerID string, _ string) (io.ReadWriteCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	stream := &fakeStream{}
	o.streams = append(o.streams, stream)
	o.peers = append(o.peers, peerID)
	return stream, nil
}

func TestMessengerSendOpensStreamPerMessage(t *testing.T) {
	opener := &fakeOpener{}
	m := NewMessenger(opener, discardLogger())

	require.NoError(t, m.Send(context.Background(), "12D3KooWRelayer", Envelope{
		Type:      MsgPaymentSubmitted,
		SessionID: "sess-1",
		ChainID:   31337,
		Payload:   json.RawMessage(`{"txHash":"0x01"}`),
	}))
	require.NoError(t, m.Send(context.Background(), "12D3KooWRelayer", Envelope{
		Type:      MsgSignatureCompleted,
		SessionID: "sess-1",
	}))

	require.Len(t, opener.streams, 2, "each message travels on its own stream")
	assert.True(t, opener.streams[0].closed)

	var env Envelope
	require.NoError(t, json.Unmarshal(opener.streams[0].Bytes(), &env))
	assert.Equal(t, MsgPaymentSubmitted, env.Type)
	assert.Equal(t, "sess-1", env.SessionID)
	assert.Equal(t, uint64(31337), env.ChainID)
	assert.False(t, env.SentAt.IsZero(), "send stamps the envelope")
}

func TestMessengerWaitForMessage(t *testing.T) {
	m := NewMessenger(&fakeOpener{}, discardLogger())

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Deliver(Envelope{Type: MsgSignatureCompleted, SessionID: "other"})
		m.Deliver(Envelope{Type: MsgPaymentSubmitted, SessionID: "sess-1"})
	}()

	env, err := m.WaitForMessage(context.Background(), MsgPaymentSubmitted)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", env.SessionID)

	// The unmatched envelope stays queued for its own waiter.
	env, err = m.WaitForMessage(context.Background(), MsgSignatureCompleted)
	require.NoError(t, err)
	assert.Equal(t, "other", env.SessionID)
}

func TestMessengerWaitForMessageTimesOut(t *testing.T) {
	m := NewMessenger(&fakeOpener{}, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.WaitForMessage(ctx, MsgPaymentSubmitted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMessengerHandlerSeesEveryDelivery(t *testing.T) {
	m := NewMessenger(&fakeOpener{}, discardLogger())

	var mu sync.Mutex
	var seen []string
	m.SetHandler(func(env Envelope) {
		mu.Lock()
		seen = append(seen, env.Type)
		mu.Unlock()
	})

	m.Deliver(Envelope{Type: MsgSignatureCompleted})
	m.Deliver(Envelope{Type: MsgPaymentSubmitted})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{MsgSignatureCompleted, MsgPaymentSubmitted}, seen)
}
