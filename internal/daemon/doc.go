// Package daemon coordinates the long-running royalty process.
//
// It wires configuration, the ledger store, the portal session manager, the
// sync controller, event sinks, and the optional inbox watcher into a single
// lifecycle with flock-based locking to prevent multiple instances. The daemon
// exposes the store operations used by IPC and HTTP callers and serves the
// HTTP API, including the websocket observer channel and Prometheus metrics.
//
// Keep orchestration logic here: sync behaviour lives in syncer and store
// behaviour in ledger while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
