package chains

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(Default(), log)
}

func TestResolverHubSet(t *testing.T) {
	r := newTestResolver(t)

	for _, hub := range []interfaces.ChainID{8453, 84532, 31337} {
		assert.True(t, r.IsHubChain(hub), "chain %s should be a hub", hub.String())

		_, ok := r.HubChainFor(hub)
		assert.False(t, ok, "hub %s must not map to another hub", hub.String())

		res, err := r.Resolve(hub)
		require.NoError(t, err)
		assert.Equal(t, RoleHub, res.Role)
		assert.Equal(t, hub, res.Hub)
	}
}

func TestResolverSpokeMapping(t *testing.T) {
	r := newTestResolver(t)

	cases := []struct {
		spoke interfaces.ChainID
		hub   interfaces.ChainID
	}{
		{10, 8453},
		{11155420, 84532},
		{31338, 31337},
	}

	for _, tc := range cases {
		hub, ok := r.HubChainFor(tc.spoke)
		require.True(t, ok, "spoke %s should resolve", tc.spoke.String())
		assert.Equal(t, tc.hub, hub)

		res, err := r.Resolve(tc.spoke)
		require.NoError(t, err)
		assert.Equal(t, RoleSpoke, res.Role)
		assert.Equal(t, tc.hub, res.Hub)
	}
}

func TestResolverUnknownSpokeHasNoDefault(t *testing.T) {
	r := newTestResolver(t)

	unknown := interfaces.ChainID(999999)

	hub, ok := r.HubChainFor(unknown)
	assert.False(t, ok)
	assert.Equal(t, interfaces.ChainID(0), hub)

	_, err := r.Resolve(unknown)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoHubMapping))
}

func TestResolverSpokeIsNegationOfHub(t *testing.T) {
	r := newTestResolver(t)

	for _, chain := range []interfaces.ChainID{8453, 84532, 31337, 10, 11155420, 31338, 999999, 1} {
		assert.Equal(t, !r.IsHubChain(chain), r.IsSpokeChain(chain), "chain %s", chain.String())
	}
}
