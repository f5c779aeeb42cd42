// Package daemonctl launches, stops and inspects the royalty daemon from the
// CLI side of the IPC socket.
package daemonctl
