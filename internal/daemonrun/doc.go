// Package daemonrun hosts the long-running daemon process: logging setup,
// pid file, ledger store, HTTP API and the IPC socket.
package daemonrun
