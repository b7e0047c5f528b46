// Command coordinator runs the registration coordinator: the session API,
// the registry status gateways, the grace period tracking and, unless
// disabled, the libp2p relay host for p2pRelay sessions.
//
// Chains are described by a YAML table (see chains.Parse); without one the
// built-in table covering Base, Optimism and the local devnet pair is used.
// Relay peers can be discovered through a trusted-relayer directory URL or
// dnsaddr TXT records, and sessions may also name their relay peers
// explicitly.
package main
