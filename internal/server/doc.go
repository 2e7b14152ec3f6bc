// Package server owns the remote sensor connection multiplexer.
//
// Ownership boundary:
// - listener and live peer set
// - one owning event loop for accept, inbound dispatch, and detach
// - ordered per-peer outbound queues and fan-out
// - differential sensor broadcast with full resync on attach
//
// The hardware-facing logic sits behind Controller and never touches sockets.
package server
