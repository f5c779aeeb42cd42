package api

import (
	"encoding/json"
	"strconv"
	"strings"

	"royalty/internal/events"
	"royalty/internal/extract"
	"royalty/internal/syncer"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Response statuses.
const (
	StatusSuccess    = "success"
	StatusStarted    = "started"
	StatusError      = "error"
	StatusCancelled  = syncer.CancelStatusCancelled
	StatusNotSyncing = syncer.CancelStatusNotSyncing
)

// Amount is a row amount that accepts JSON numbers, numeric strings such as
// "12,300원", and null. Valid is false when no number could be read.
type Amount struct {
	Value float64
	Valid bool
}

// NewAmount returns a valid Amount.
func NewAmount(value float64) Amount {
	return Amount{Value: value, Valid: true}
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	switch {
	case text == "null":
		*a = Amount{}
	case strings.HasPrefix(text, `"`):
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		value, ok := extract.ParseAmount(raw)
		*a = Amount{Value: value.InexactFloat64(), Valid: ok}
	default:
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return err
		}
		*a = NewAmount(value)
	}
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, a.Value, 'f', -1, 64), nil
}

// ManualUploadItem is one title and amount in a manual upload.
type ManualUploadItem struct {
	Title  string `json:"title"`
	Amount Amount `json:"amount"`
}

// ManualUploadRequest is the saveManualUploadData payload.
type ManualUploadRequest struct {
	SettlementMonth string             `json:"settlementMonth"`
	DataToSave      []ManualUploadItem `json:"dataToSave"`
}

// ManualUploadResponse reports a saved upload.
type ManualUploadResponse struct {
	Status     string `json:"status"`
	PeriodKey  string `json:"periodKey"`
	SavedCount int    `json:"savedCount"`
	Skipped    int    `json:"skipped"`
	Replaced   int64  `json:"replaced"`
}

// DBStatusResponse is the getSyncDbStatus / getUploadDbStatus reply.
type DBStatusResponse struct {
	Partition   string           `json:"partition"`
	RecordCount int64            `json:"recordCount"`
	TotalSum    int64            `json:"totalSum"`
	Sums        map[string]int64 `json:"sums,omitempty"`
}

// MonthlySumsResponse maps YYYY-MM to the month's total for one year.
type MonthlySumsResponse struct {
	Partition string           `json:"partition"`
	Year      int              `json:"year"`
	Sums      map[string]int64 `json:"sums"`
}

// Record is a stored settlement record.
type Record struct {
	ID        int64  `json:"id"`
	PeriodKey string `json:"periodKey"`
	Title     string `json:"title"`
	Amount    int64  `json:"amount"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// RecordListResponse wraps stored records.
type RecordListResponse struct {
	Partition string   `json:"partition"`
	Records   []Record `json:"records"`
}

// Period summarizes one stored period.
type Period struct {
	PeriodKey string `json:"periodKey"`
	Count     int64  `json:"count"`
	Total     int64  `json:"total"`
}

// PeriodListResponse wraps stored periods.
type PeriodListResponse struct {
	Partition string   `json:"partition"`
	Periods   []Period `json:"periods"`
}

// ClearResponse reports a cleared partition.
type ClearResponse struct {
	Partition string `json:"partition"`
	Deleted   int64  `json:"deleted"`
}

// StartSyncRequest is the startFullSync payload.
type StartSyncRequest struct {
	StartDate syncer.StartRequest `json:"startDate"`
}

// StartSyncResponse is the startFullSync reply.
type StartSyncResponse struct {
	Type    events.Type `json:"type,omitempty"`
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	RunID   string      `json:"runId,omitempty"`
	Units   int         `json:"units,omitempty"`
	From    string      `json:"from,omitempty"`
	To      string      `json:"to,omitempty"`
}

// ClientMessage is a request an observer sends over the sync websocket.
// StartDate is read for startFullSync only.
type ClientMessage struct {
	Type      events.Type         `json:"type"`
	StartDate syncer.StartRequest `json:"startDate"`
}

// CancelSyncResponse is the cancelSync reply.
type CancelSyncResponse struct {
	Type   events.Type `json:"type,omitempty"`
	Status string      `json:"status"`
}

// NewStartSyncResponse converts a controller start outcome into its wire form.
func NewStartSyncResponse(result syncer.StartResult, err error) StartSyncResponse {
	if err != nil {
		return StartSyncResponse{Type: events.TypeStartFullSync, Status: StatusError, Message: err.Error()}
	}
	return StartSyncResponse{
		Type:   events.TypeStartFullSync,
		Status: StatusStarted,
		RunID:  result.RunID,
		Units:  result.Units,
		From:   result.From,
		To:     result.To,
	}
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StoreDriver  string             `json:"storeDriver"`
	DatabasePath string             `json:"databasePath,omitempty"`
	LockFilePath string             `json:"lockFilePath"`
	InboxEnabled bool               `json:"inboxEnabled"`
	Sync         syncer.Status      `json:"sync"`
	Partitions   []DBStatusResponse `json:"partitions"`
}

// ErrorResponse is the wire form of a failure.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}
