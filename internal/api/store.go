package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"royalty/internal/ledger"
	"royalty/internal/logging"
	"royalty/internal/services"
)

// RecordStore is the subset of ledger.Store the API operations need.
type RecordStore interface {
	ReplacePeriod(ctx context.Context, partition ledger.Partition, periodKey string, records []ledger.Record) (ledger.ReplaceResult, error)
	Status(ctx context.Context, partition ledger.Partition) (ledger.Status, error)
	SumAmountByTitle(ctx context.Context, partition ledger.Partition) (map[string]int64, error)
	MonthlySums(ctx context.Context, partition ledger.Partition, year int) (map[string]int64, error)
	ScanAll(ctx context.Context, partition ledger.Partition) ([]ledger.Record, error)
	ScanPeriod(ctx context.Context, partition ledger.Partition, periodKey string) ([]ledger.Record, error)
	ListPeriods(ctx context.Context, partition ledger.Partition) ([]ledger.PeriodSummary, error)
	Clear(ctx context.Context, partition ledger.Partition) (int64, error)
}

// SaveManualUpload replaces the request's settlement month in the manual
// partition. Rows with a blank title or an unreadable amount are skipped,
// logged and counted; they never fail the batch. logger may be nil.
func SaveManualUpload(ctx context.Context, store RecordStore, req ManualUploadRequest, logger *slog.Logger) (ManualUploadResponse, error) {
	if store == nil {
		return ManualUploadResponse{}, services.Wrap(services.ErrStoreUnavailable, "api", "manual_upload", "store not configured", nil)
	}
	periodKey, err := ledger.NormalizePeriodKey(req.SettlementMonth)
	if err != nil {
		return ManualUploadResponse{}, err
	}

	logger = logging.WithContext(ctx, logger)
	records := make([]ledger.Record, 0, len(req.DataToSave))
	skipped := 0
	for i, item := range req.DataToSave {
		rec, err := ledger.NewRecord(periodKey, strings.TrimSpace(item.Title), item.Amount.Value)
		if err == nil && !item.Amount.Valid {
			err = services.Wrap(services.ErrValidation, "api", "manual_upload", "amount is missing or unreadable", nil)
		}
		if err != nil {
			skipped++
			logging.WarnWithContext(logger, "upload row skipped", "upload_row_invalid",
				logging.Period(periodKey),
				logging.Int("index", i),
				logging.String("title", item.Title),
				logging.Error(err),
				logging.String(logging.FieldImpact, "row not stored"),
				logging.String(logging.FieldErrorHint, "check the row for a blank title or unreadable amount"),
			)
			continue
		}
		records = append(records, rec)
	}

	result, err := store.ReplacePeriod(ctx, ledger.Manual, periodKey, records)
	if err != nil {
		return ManualUploadResponse{}, err
	}
	return ManualUploadResponse{
		Status:     StatusSuccess,
		PeriodKey:  result.PeriodKey,
		SavedCount: result.SavedCount,
		Skipped:    skipped + result.Skipped,
		Replaced:   result.Deleted,
	}, nil
}

// DBStatus reports the partition's record count and total. When withSums is
// set the per-title sums are included.
func DBStatus(ctx context.Context, store RecordStore, partition ledger.Partition, withSums bool) (DBStatusResponse, error) {
	status, err := store.Status(ctx, partition)
	if err != nil {
		return DBStatusResponse{}, err
	}
	resp := DBStatusResponse{
		Partition:   string(status.Partition),
		RecordCount: status.RecordCount,
		TotalSum:    status.TotalSum,
	}
	if withSums {
		sums, err := store.SumAmountByTitle(ctx, partition)
		if err != nil {
			return DBStatusResponse{}, err
		}
		resp.Sums = sums
	}
	return resp, nil
}

// MonthlySums returns the per-month totals of one year.
func MonthlySums(ctx context.Context, store RecordStore, partition ledger.Partition, year int) (MonthlySumsResponse, error) {
	if year < 1 || year > 9999 {
		return MonthlySumsResponse{}, services.Wrap(services.ErrValidation, "api", "monthly_sums", fmt.Sprintf("invalid year %d", year), nil)
	}
	sums, err := store.MonthlySums(ctx, partition, year)
	if err != nil {
		return MonthlySumsResponse{}, err
	}
	if sums == nil {
		sums = map[string]int64{}
	}
	return MonthlySumsResponse{Partition: string(partition), Year: year, Sums: sums}, nil
}

// ListRecords returns the partition's records, limited to one period when
// periodKey is not empty.
func ListRecords(ctx context.Context, store RecordStore, partition ledger.Partition, periodKey string) (RecordListResponse, error) {
	var (
		records []ledger.Record
		err     error
	)
	if strings.TrimSpace(periodKey) == "" {
		records, err = store.ScanAll(ctx, partition)
	} else {
		var key string
		if key, err = ledger.NormalizePeriodKey(periodKey); err != nil {
			return RecordListResponse{}, err
		}
		records, err = store.ScanPeriod(ctx, partition, key)
	}
	if err != nil {
		return RecordListResponse{}, err
	}
	resp := RecordListResponse{Partition: string(partition), Records: make([]Record, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, FromRecord(rec))
	}
	return resp, nil
}

// ListPeriods returns one entry per stored period.
func ListPeriods(ctx context.Context, store RecordStore, partition ledger.Partition) (PeriodListResponse, error) {
	periods, err := store.ListPeriods(ctx, partition)
	if err != nil {
		return PeriodListResponse{}, err
	}
	resp := PeriodListResponse{Partition: string(partition), Periods: make([]Period, 0, len(periods))}
	for _, p := range periods {
		resp.Periods = append(resp.Periods, Period{PeriodKey: p.PeriodKey, Count: p.Count, Total: p.Total})
	}
	return resp, nil
}

// ClearPartition removes every record in the partition.
func ClearPartition(ctx context.Context, store RecordStore, partition ledger.Partition) (ClearResponse, error) {
	deleted, err := store.Clear(ctx, partition)
	if err != nil {
		return ClearResponse{}, err
	}
	return ClearResponse{Partition: string(partition), Deleted: deleted}, nil
}

// FromRecord converts a stored record into its wire form.
func FromRecord(rec ledger.Record) Record {
	out := Record{
		ID:        rec.ID,
		PeriodKey: rec.PeriodKey,
		Title:     rec.Title,
		Amount:    rec.Amount,
	}
	if !rec.CreatedAt.IsZero() {
		out.CreatedAt = rec.CreatedAt.UTC().Format(dateTimeFormat)
	}
	return out
}

// FormatTime renders t in the API timestamp format. Zero times render empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// NewError converts err into the wire error shape.
func NewError(err error) ErrorResponse {
	if err == nil {
		err = errors.New("unknown error")
	}
	return ErrorResponse{
		Status:  StatusError,
		Message: err.Error(),
		Kind:    string(services.Classify(err)),
	}
}
