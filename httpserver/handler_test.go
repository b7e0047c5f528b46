package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stolen-wallet-registry/registry-coordinator/api"
	"github.com/stolen-wallet-registry/registry-coordinator/chains"
	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
	"github.com/stolen-wallet-registry/registry-coordinator/registry"
	"github.com/stolen-wallet-registry/registry-coordinator/session"
)

const testRegisteree = "0x1111111111111111111111111111111111111111"

type stubGateways struct {
	fetcher *registry.MockStatusFetcher
}

func (s *stubGateways) GatewayFor(interfaces.ChainID) (interfaces.RegistryStatusFetcher, error) {
	return s.fetcher, nil
}

type stubBlocks struct {
	reader *registry.MockBlockReader
}

func (s *stubBlocks) BlockReaderFor(interfaces.ChainID) (interfaces.BlockNumberReader, error) {
	return s.reader, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	fetcher := &registry.MockStatusFetcher{}
	fetcher.On("FetchStatus", mock.Anything, mock.Anything).Return(interfaces.RegistryStatusSnapshot{}, nil).Maybe()
	reader := &registry.MockBlockReader{}
	reader.On("BlockNumber", mock.Anything).Return(uint64(1), nil).Maybe()

	table := chains.Default()
	manager := session.NewManager(session.ManagerConfig{}, table, chains.NewResolver(table, log), &stubGateways{fetcher: fetcher}, &stubBlocks{reader: reader}, nil, nil, log)
	t.Cleanup(manager.Close)

	handler := NewHandler(manager, table, log)
	srv, err := New(&api.HTTPServerConfig{Log: log}, handler, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.getRouter())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	return resp
}

func decodeSession(t *testing.T, resp *http.Response) api.SessionResponse {
	t.Helper()
	defer resp.Body.Close()
	var out api.SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func decodeError(t *testing.T, resp *http.Response) api.ErrorResponse {
	t.Helper()
	defer resp.Body.Close()
	var out api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createSession(t *testing.T, ts *httptest.Server, req api.CreateSessionRequest) api.SessionResponse {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/v1/sessions", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeSession(t, resp)
}

func TestHandleCreateSession(t *testing.T) {
	ts := newTestServer(t)

	sess := createSession(t, ts, api.CreateSessionRequest{
		Variant:       string(interfaces.VariantWallet),
		Mode:          string(interfaces.ModeStandard),
		Role:          string(interfaces.RoleRegisteree),
		Registeree:    testRegisteree,
		OriginChainID: 31338,
	})

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, uint64(31338), sess.OriginChainID)
	assert.Equal(t, uint64(31337), sess.HubChainID, "origin resolves to its hub")
	assert.Equal(t, "acknowledge-and-sign", sess.Step)
	assert.NotEmpty(t, sess.Sequence)
	assert.Equal(t, sess.Step, sess.Sequence[0])
}

func TestHandleCreateSessionValidation(t *testing.T) {
	ts := newTestServer(t)

	// Unknown variant.
	resp := postJSON(t, ts.URL+"/api/v1/sessions", api.CreateSessionRequest{
		Variant:       "bogus",
		Mode:          string(interfaces.ModeStandard),
		Role:          string(interfaces.RoleRegisteree),
		Registeree:    testRegisteree,
		OriginChainID: 31338,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Malformed address.
	resp = postJSON(t, ts.URL+"/api/v1/sessions", api.CreateSessionRequest{
		Variant:       string(interfaces.VariantWallet),
		Mode:          string(interfaces.ModeStandard),
		Role:          string(interfaces.RoleRegisteree),
		Registeree:    "not-an-address",
		OriginChainID: 31338,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHandleCreateSessionUnknownSpoke(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/sessions", api.CreateSessionRequest{
		Variant:       string(interfaces.VariantWallet),
		Mode:          string(interfaces.ModeStandard),
		Role:          string(interfaces.RoleRegisteree),
		Registeree:    testRegisteree,
		OriginChainID: 999999,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "a chain without a hub mapping is never defaulted")
	body := decodeError(t, resp)
	assert.NotEmpty(t, body.Error)
}

func TestHandleGetSession(t *testing.T) {
	ts := newTestServer(t)
	created := createSession(t, ts, api.CreateSessionRequest{
		Variant:       string(interfaces.VariantWallet),
		Mode:          string(interfaces.ModeStandard),
		Role:          string(interfaces.RoleRegisteree),
		Registeree:    testRegisteree,
		OriginChainID: 31338,
	})

	resp, err := http.Get(ts.URL + "/api/v1/sessions/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeSession(t, resp)
	assert.Equal(t, created.ID, got.ID)

	// Unknown id.
	resp, err = http.Get(ts.URL + "/api/v1/sessions/00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Malformed id.
	resp, err = http.Get(ts.URL + "/api/v1/sessions/not-a-uuid")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHandleSubmitEvent(t *testing.T) {
	ts := newTestServer(t)
	created := createSession(t, ts, api.CreateSessionRequest{
		Variant:       string(interfaces.VariantWallet),
		Mode:          string(interfaces.ModeStandard),
		Role:          string(interfaces.RoleRegisteree),
		Registeree:    testRegisteree,
		OriginChainID: 31338,
	})

	resp := postJSON(t, ts.URL+"/api/v1/sessions/"+created.ID+"/events", api.EventRequest{
		Type:      string(session.EventSignatureCompleted),
		Signature: "0xdeadbeef",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeSession(t, resp)
	assert.Equal(t, "acknowledge-and-pay", got.Step, "accepted events return the advanced session")
}

func TestHandleSubmitEventRejectedTransition(t *testing.T) {
	ts := newTestServer(t)
	created := createSession(t, ts, api.CreateSessionRequest{
		Variant:       string(interfaces.VariantWallet),
		Mode:          string(interfaces.ModeStandard),
		Role:          string(interfaces.RoleRegisteree),
		Registeree:    testRegisteree,
		OriginChainID: 31338,
	})

	// Paying before signing violates the step guard.
	resp := postJSON(t, ts.URL+"/api/v1/sessions/"+created.ID+"/events", api.EventRequest{
		Type:   string(session.EventPaymentSubmitted),
		TxHash: "0x01",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, "wrong_step", body.Code, "rejections carry the machine's reason code")
}

func TestHandleSubmitEventBadPayload(t *testing.T) {
	ts := newTestServer(t)
	created := createSession(t, ts, api.CreateSessionRequest{
		Variant:       string(interfaces.VariantWallet),
		Mode:          string(interfaces.ModeStandard),
		Role:          string(interfaces.RoleRegisteree),
		Registeree:    testRegisteree,
		OriginChainID: 31338,
	})

	resp := postJSON(t, ts.URL+"/api/v1/sessions/"+created.ID+"/events", api.EventRequest{
		Type:      string(session.EventSignatureCompleted),
		Signature: "0xZZ",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHandleDeleteSession(t *testing.T) {
	ts := newTestServer(t)
	created := createSession(t, ts, api.CreateSessionRequest{
		Variant:       string(interfaces.VariantWallet),
		Mode:          string(interfaces.ModeStandard),
		Role:          string(interfaces.RoleRegisteree),
		Registeree:    testRegisteree,
		OriginChainID: 31338,
	})

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/sessions/"+created.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// The session is gone; deleting again is a 404.
	resp, err = http.DefaultClient.Do(req.Clone(req.Context()))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/livez", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}
}
