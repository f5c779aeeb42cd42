package events

import (
	"context"
	"encoding/json"
	"time"
)

// Type tags a message.
type Type string

const (
	TypeStartFullSync        Type = "startFullSync"
	TypeCancelSync           Type = "cancelSync"
	TypeProgressUpdate       Type = "progressUpdate"
	TypeSyncComplete         Type = "syncComplete"
	TypeSyncCancelled        Type = "syncCancelled"
	TypeSyncError            Type = "syncError"
	TypeParsedMonthlyData    Type = "parsedMonthlyData"
	TypeSaveManualUploadData Type = "saveManualUploadData"
	TypeGetSyncDBStatus      Type = "getSyncDbStatus"
	TypeGetUploadDBStatus    Type = "getUploadDbStatus"
)

// Message is one controller to observer notification.
type Message struct {
	Type         Type      `json:"type"`
	RunID        string    `json:"runId,omitempty"`
	Month        string    `json:"month,omitempty"`
	Error        string    `json:"error,omitempty"`
	TotalSum     int64     `json:"totalSum,omitempty"`
	FailedMonths []string  `json:"failedMonths,omitempty"`
	Message      string    `json:"message,omitempty"`
	Time         time.Time `json:"time"`
}

// MarshalJSON always includes totalSum and failedMonths on syncComplete.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	if m.Type != TypeSyncComplete {
		return json.Marshal(plain(m))
	}
	failed := m.FailedMonths
	if failed == nil {
		failed = []string{}
	}
	return json.Marshal(struct {
		plain
		TotalSum     int64    `json:"totalSum"`
		FailedMonths []string `json:"failedMonths"`
	}{plain(m), m.TotalSum, failed})
}

// Progress reports that month is about to be fetched, or that it failed.
func Progress(month string, err error) Message {
	msg := Message{Type: TypeProgressUpdate, Month: month}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// Complete reports the end of a run.
func Complete(totalSum int64, failedMonths []string) Message {
	return Message{Type: TypeSyncComplete, TotalSum: totalSum, FailedMonths: append([]string(nil), failedMonths...)}
}

// Cancelled reports that a run stopped before its queue emptied.
func Cancelled(reason string) Message {
	return Message{Type: TypeSyncCancelled, Message: reason}
}

// Failed reports a run-level error.
func Failed(reason string) Message {
	return Message{Type: TypeSyncError, Message: reason}
}

// Observer receives controller messages. A non-nil error means the observer
// is no longer reachable.
type Observer interface {
	Deliver(ctx context.Context, msg Message) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, msg Message) error

// Deliver calls f.
func (f ObserverFunc) Deliver(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Discard is an Observer that accepts every message.
var Discard Observer = ObserverFunc(func(context.Context, Message) error { return nil })
