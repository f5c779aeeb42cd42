// Package api defines the wire-format types shared by the IPC and HTTP
// layers and the store-facing operations behind them.
//
// # Key Types
//
// ManualUploadRequest: saveManualUploadData payload. Raw JSON is checked
// against an embedded JSON schema before it is decoded; individual rows
// that cannot become records are skipped rather than failing the batch.
//
// DBStatusResponse: getSyncDbStatus / getUploadDbStatus reply with record
// count, total and optional per-title sums.
//
// DaemonStatus: daemon runtime information plus the sync controller snapshot.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Failures cross the wire as {status:"error", message, kind}.
package api
