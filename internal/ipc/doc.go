// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Sync
// and store calls carry the same payloads as the HTTP API (startFullSync,
// cancelSync, saveManualUploadData, getSyncDbStatus, getUploadDbStatus), so
// the api package types are reused directly.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// and compatible with existing command implementations.
package ipc
