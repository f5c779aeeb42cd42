package ledger

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"royalty/internal/services"
)

// Partition selects which logical store a record lives in.
type Partition string

const (
	Synced Partition = "synced"
	Manual Partition = "manual"
)

// Partitions lists every partition in display order.
var Partitions = []Partition{Synced, Manual}

// ParsePartition accepts the partition name or a common alias.
func ParsePartition(value string) (Partition, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "synced", "sync", "external":
		return Synced, nil
	case "manual", "upload", "uploaded":
		return Manual, nil
	default:
		return "", services.Wrap(services.ErrValidation, "ledger", "partition", fmt.Sprintf("unknown partition %q", value), nil)
	}
}

func (p Partition) table() (string, error) {
	switch p {
	case Synced:
		return "synced_records", nil
	case Manual:
		return "manual_records", nil
	default:
		return "", services.Wrap(services.ErrValidation, "ledger", "partition", fmt.Sprintf("unknown partition %q", string(p)), nil)
	}
}

// Record is one settlement line. Identity is scoped to PeriodKey; ID is
// assigned by the store and ignored on insert.
type Record struct {
	ID        int64     `json:"id,omitempty" yaml:"id,omitempty"`
	PeriodKey string    `json:"periodKey" yaml:"periodKey"`
	Title     string    `json:"title" yaml:"title"`
	Amount    int64     `json:"amount" yaml:"amount"`
	CreatedAt time.Time `json:"createdAt,omitzero" yaml:"createdAt,omitempty"`
}

// NewRecord builds a record from a possibly fractional amount. NaN and
// infinite amounts are rejected.
func NewRecord(periodKey, title string, amount float64) (Record, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Record{}, services.Wrap(services.ErrValidation, "ledger", "record", fmt.Sprintf("amount for %q is not finite", title), nil)
	}
	rec := Record{PeriodKey: periodKey, Title: title, Amount: int64(math.Round(amount))}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Validate reports whether the record can be persisted.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return services.Wrap(services.ErrValidation, "ledger", "record", "title is blank", nil)
	}
	if _, err := NormalizePeriodKey(r.PeriodKey); err != nil {
		return err
	}
	return nil
}

var periodPattern = regexp.MustCompile(`^(\d{4})[.\-/]?(\d{1,2})$`)

// NormalizePeriodKey converts YYYY.MM, YYYY-MM, YYYY/MM and YYYYMM into the
// canonical YYYY.MM form.
func NormalizePeriodKey(value string) (string, error) {
	match := periodPattern.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return "", services.Wrap(services.ErrValidation, "ledger", "period", fmt.Sprintf("invalid period key %q", value), nil)
	}
	month, _ := strconv.Atoi(match[2])
	if month < 1 || month > 12 {
		return "", services.Wrap(services.ErrValidation, "ledger", "period", fmt.Sprintf("invalid month in period key %q", value), nil)
	}
	return fmt.Sprintf("%s.%02d", match[1], month), nil
}

// PeriodKeyFor formats a year and month as a canonical period key.
func PeriodKeyFor(year int, month time.Month) string {
	return fmt.Sprintf("%04d.%02d", year, int(month))
}

// DisplayMonth turns a YYYY.MM period key into the YYYY-MM form used in
// monthly reports.
func DisplayMonth(periodKey string) string {
	return strings.Replace(periodKey, ".", "-", 1)
}

// InsertResult summarizes an InsertMany call.
type InsertResult struct {
	SavedCount int `json:"savedCount"`
	Skipped    int `json:"skipped"`
}

// ReplaceResult summarizes a ReplacePeriod call.
type ReplaceResult struct {
	PeriodKey  string `json:"periodKey"`
	Deleted    int64  `json:"deleted"`
	SavedCount int    `json:"savedCount"`
	Skipped    int    `json:"skipped"`
}

// Status is the record count and settlement total of one partition.
type Status struct {
	Partition   Partition `json:"partition" yaml:"partition"`
	RecordCount int64     `json:"recordCount" yaml:"recordCount"`
	TotalSum    int64     `json:"totalSum" yaml:"totalSum"`
}

// PeriodSummary describes the stored rows of one period.
type PeriodSummary struct {
	PeriodKey string `json:"periodKey" yaml:"periodKey"`
	Count     int64  `json:"count" yaml:"count"`
	Total     int64  `json:"total" yaml:"total"`
}

// DatabaseHealth reports diagnostics gathered by CheckHealth.
type DatabaseHealth struct {
	Driver         string           `json:"driver"`
	Path           string           `json:"path,omitempty"`
	Reachable      bool             `json:"reachable"`
	SchemaVersion  int              `json:"schemaVersion"`
	TablesPresent  []string         `json:"tablesPresent"`
	MissingTables  []string         `json:"missingTables,omitempty"`
	RecordCounts   map[string]int64 `json:"recordCounts"`
	IntegrityCheck string           `json:"integrityCheck,omitempty"`
	Error          string           `json:"error,omitempty"`
}
