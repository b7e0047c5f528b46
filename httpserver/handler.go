package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stolen-wallet-registry/registry-coordinator/api"
	"github.com/stolen-wallet-registry/registry-coordinator/chains"
	"github.com/stolen-wallet-registry/registry-coordinator/interfaces"
	"github.com/stolen-wallet-registry/registry-coordinator/session"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// RequestError provides structured error information for HTTP responses.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Code is the machine-readable rejection reason, when one applies.
	Code string

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Handler processes the session API requests. It is a thin mapping layer
// over the session manager; all coordination logic lives there.
type Handler struct {
	manager *session.Manager
	table   *chains.Config
	log     *slog.Logger
}

// NewHandler creates the session API handler.
func NewHandler(manager *session.Manager, table *chains.Config, log *slog.Logger) *Handler {
	return &Handler{manager: manager, table: table, log: log}
}

// HandleCreateSession starts a new registration session.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid request body: %w", err)})
		return
	}

	registeree, err := interfaces.NewWalletAddressFromHex(req.Registeree)
	if err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid registeree address: %w", err)})
		return
	}

	sess, err := h.manager.CreateSession(session.CreateParams{
		Variant:       interfaces.RegistrationVariant(req.Variant),
		Mode:          interfaces.CoordinationMode(req.Mode),
		Role:          interfaces.ParticipantRole(req.Role),
		Registeree:    registeree,
		OriginChainID: interfaces.ChainID(req.OriginChainID),
		RelayPeerIDs:  req.RelayPeerIDs,
	})
	if err != nil {
		h.writeError(w, h.mapError(err))
		return
	}

	h.writeJSON(w, http.StatusCreated, api.NewSessionResponse(sess, h.table))
}

// HandleGetSession returns the current state of a session.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id, reqErr := h.sessionID(r)
	if reqErr != nil {
		h.writeError(w, reqErr)
		return
	}

	sess, err := h.manager.Get(id)
	if err != nil {
		h.writeError(w, h.mapError(err))
		return
	}

	h.writeJSON(w, http.StatusOK, api.NewSessionResponse(sess, h.table))
}

// HandleSubmitEvent hands one event to a session and returns its updated
// state. Rejected transitions map to 409 with the rejection reason code.
func (h *Handler) HandleSubmitEvent(w http.ResponseWriter, r *http.Request) {
	id, reqErr := h.sessionID(r)
	if reqErr != nil {
		h.writeError(w, reqErr)
		return
	}

	var req api.EventRequest
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid request body: %w", err)})
		return
	}

	ev, err := req.ToEvent()
	if err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}

	if err := h.manager.SubmitEvent(r.Context(), id, ev); err != nil {
		h.writeError(w, h.mapError(err))
		return
	}

	sess, err := h.manager.Get(id)
	if err != nil {
		h.writeError(w, h.mapError(err))
		return
	}

	h.writeJSON(w, http.StatusOK, api.NewSessionResponse(sess, h.table))
}

// HandleDeleteSession abandons a session.
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, reqErr := h.sessionID(r)
	if reqErr != nil {
		h.writeError(w, reqErr)
		return
	}

	if err := h.manager.Teardown(id); err != nil {
		h.writeError(w, h.mapError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionID(r *http.Request) (uuid.UUID, *RequestError) {
	raw := chi.URLParam(r, "session_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid session id %q: %w", raw, err)}
	}
	return id, nil
}

// mapError translates manager and machine errors into HTTP responses.
func (h *Handler) mapError(err error) *RequestError {
	var tErr *session.TransitionError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return &RequestError{StatusCode: http.StatusNotFound, Err: err}
	case errors.Is(err, chains.ErrNoHubMapping):
		return &RequestError{StatusCode: http.StatusUnprocessableEntity, Err: err}
	case errors.As(err, &tErr):
		return &RequestError{StatusCode: http.StatusConflict, Code: string(tErr.Reason), Err: err}
	default:
		return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
}

func (h *Handler) writeError(w http.ResponseWriter, reqErr *RequestError) {
	if reqErr.StatusCode >= 500 {
		h.log.Error("Request failed", "err", reqErr.Err, "status", reqErr.StatusCode)
	} else {
		h.log.Debug("Request rejected", "err", reqErr.Err, "status", reqErr.StatusCode)
	}
	h.writeJSON(w, reqErr.StatusCode, api.ErrorResponse{Error: reqErr.Err.Error(), Code: reqErr.Code})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
