package ipc

import (
	"royalty/internal/api"
	"royalty/internal/ledger"
	"royalty/internal/syncer"
)

// StartRequest starts daemon services.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon process.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and sync status information.
type StatusResponse = api.DaemonStatus

// SyncStartRequest is the startFullSync payload. A zero start date uses the
// configured default.
type SyncStartRequest = api.StartSyncRequest

// SyncStartResponse reports started or error with a message.
type SyncStartResponse = api.StartSyncResponse

// SyncCancelRequest is the cancelSync payload.
type SyncCancelRequest struct{}

// SyncCancelResponse reports cancelled or not_syncing.
type SyncCancelResponse = api.CancelSyncResponse

// SyncStatusRequest fetches the controller snapshot.
type SyncStatusRequest struct{}

// SyncStatusResponse is the controller snapshot.
type SyncStatusResponse = syncer.Status

// SaveManualRequest is the saveManualUploadData payload.
type SaveManualRequest = api.ManualUploadRequest

// SaveManualResponse reports the saved upload.
type SaveManualResponse = api.ManualUploadResponse

// DBStatusRequest selects a partition. Partition accepts synced or manual.
type DBStatusRequest struct {
	Partition string `json:"partition"`
	Sums      bool   `json:"sums"`
}

// DBStatusResponse is the getSyncDbStatus / getUploadDbStatus reply.
type DBStatusResponse = api.DBStatusResponse

// MonthlySumsRequest selects a partition and year.
type MonthlySumsRequest struct {
	Partition string `json:"partition"`
	Year      int    `json:"year"`
}

// MonthlySumsResponse maps YYYY-MM to totals.
type MonthlySumsResponse = api.MonthlySumsResponse

// ListRecordsRequest lists a partition, optionally limited to one period.
type ListRecordsRequest struct {
	Partition string `json:"partition"`
	Period    string `json:"period"`
}

// ListRecordsResponse contains stored records.
type ListRecordsResponse = api.RecordListResponse

// ListPeriodsRequest lists the stored periods of a partition.
type ListPeriodsRequest struct {
	Partition string `json:"partition"`
}

// ListPeriodsResponse contains period summaries.
type ListPeriodsResponse = api.PeriodListResponse

// ClearPartitionRequest removes every record of a partition.
type ClearPartitionRequest struct {
	Partition string `json:"partition"`
}

// ClearPartitionResponse reports number of removed records.
type ClearPartitionResponse = api.ClearResponse

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse = ledger.DatabaseHealth

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
