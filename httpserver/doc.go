// Package httpserver exposes the registration coordinator over HTTP.
//
// The server mounts the session API under /api/v1/sessions: sessions are
// created with POST, read with GET, fed events with POST on /events and
// abandoned with DELETE. Health endpoints (/livez, /readyz) and drain
// controls (/drain, /undrain) follow the usual load balancer contract, and
// the pprof API can be mounted under /debug for diagnostics.
//
// Error mapping is uniform: validation problems are 400, unknown sessions
// 404, origin chains without a hub mapping 422, and rejected transitions 409
// with the state machine's reason code in the body.
package httpserver
