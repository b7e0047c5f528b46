// Package api defines the wire types of the registration coordinator's HTTP
// API and the server configuration shared by the cmd binaries.
//
// The session endpoints exchange JSON documents. Requests name variants,
// modes, roles and steps by their string identifiers; addresses, signatures
// and message ids travel hex-encoded. SessionResponse is a projection of the
// internal session state: it carries the full step sequence, the current
// position, the waiting-state description for the caller's role and, where
// available, explorer links and a grace period estimate.
//
// Errors are returned as ErrorResponse documents. Rejected transitions carry
// the machine's reason code so clients can branch on it without parsing the
// message text.
package api
