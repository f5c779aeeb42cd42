package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"royalty/internal/api"
	"royalty/internal/ledger"
	"royalty/internal/services"
	"royalty/internal/testsupport"
)

func TestDecodeManualUploadAcceptsMixedAmounts(t *testing.T) {
	payload := []byte(`{
		"settlementMonth": "2024.03",
		"dataToSave": [
			{"title": "검의 길", "amount": 12300},
			{"title": "달빛 서점", "amount": "1,200원"},
			{"title": "빈 값", "amount": null}
		]
	}`)
	req, err := api.DecodeManualUpload(payload)
	if err != nil {
		t.Fatalf("DecodeManualUpload: %v", err)
	}
	if req.SettlementMonth != "2024.03" || len(req.DataToSave) != 3 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if got := req.DataToSave[1].Amount; !got.Valid || got.Value != 1200 {
		t.Fatalf("expected string amount to parse, got %+v", got)
	}
	if req.DataToSave[2].Amount.Valid {
		t.Fatal("expected null amount to be invalid")
	}
}

func TestDecodeManualUploadRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing month":   `{"dataToSave": []}`,
		"bad month":       `{"settlementMonth": "2024.13", "dataToSave": []}`,
		"missing title":   `{"settlementMonth": "2024.03", "dataToSave": [{"amount": 1}]}`,
		"object amount":   `{"settlementMonth": "2024.03", "dataToSave": [{"title": "a", "amount": {}}]}`,
		"not json":        `{"settlementMonth"`,
		"rows not a list": `{"settlementMonth": "2024.03", "dataToSave": {}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := api.DecodeManualUpload([]byte(payload))
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSaveManualUploadReplacesPeriod(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SeedPeriod(t, store, ledger.Manual, "2024.03", map[string]int64{"이전 작품": 999})

	req := api.ManualUploadRequest{
		SettlementMonth: "2024-03",
		DataToSave: []api.ManualUploadItem{
			{Title: "검의 길", Amount: api.NewAmount(1000.4)},
			{Title: "  ", Amount: api.NewAmount(5)},
			{Title: "달빛 서점", Amount: api.Amount{}},
			{Title: "달빛 서점", Amount: api.NewAmount(250)},
		},
	}
	resp, err := api.SaveManualUpload(ctx, store, req, nil)
	if err != nil {
		t.Fatalf("SaveManualUpload: %v", err)
	}
	if resp.Status != api.StatusSuccess || resp.PeriodKey != "2024.03" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.SavedCount != 2 || resp.Skipped != 2 || resp.Replaced != 1 {
		t.Fatalf("unexpected counts: %+v", resp)
	}

	status, err := api.DBStatus(ctx, store, ledger.Manual, true)
	if err != nil {
		t.Fatalf("DBStatus: %v", err)
	}
	if status.RecordCount != 2 || status.TotalSum != 1250 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Sums["검의 길"] != 1000 || status.Sums["달빛 서점"] != 250 {
		t.Fatalf("unexpected sums: %v", status.Sums)
	}
	synced, err := api.DBStatus(ctx, store, ledger.Synced, false)
	if err != nil {
		t.Fatalf("DBStatus synced: %v", err)
	}
	if synced.RecordCount != 0 || synced.Sums != nil {
		t.Fatalf("expected synced partition untouched, got %+v", synced)
	}
}

func TestSaveManualUploadLogsSkippedRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	req := api.ManualUploadRequest{
		SettlementMonth: "2024.05",
		DataToSave: []api.ManualUploadItem{
			{Title: "검의 길", Amount: api.NewAmount(math.Inf(1))},
			{Title: "", Amount: api.NewAmount(10)},
			{Title: "달빛 서점", Amount: api.NewAmount(30)},
		},
	}
	resp, err := api.SaveManualUpload(context.Background(), store, req, logger)
	if err != nil {
		t.Fatalf("SaveManualUpload: %v", err)
	}
	if resp.SavedCount != 1 || resp.Skipped != 2 {
		t.Fatalf("unexpected counts: %+v", resp)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected one warning per skipped row, got %d:\n%s", len(lines), buf.String())
	}
	for i, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry["event_type"] != "upload_row_invalid" || entry["index"] != float64(i) {
			t.Fatalf("unexpected log entry: %v", entry)
		}
	}
}

func TestSaveManualUploadEmptyBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	resp, err := api.SaveManualUpload(context.Background(), store, api.ManualUploadRequest{SettlementMonth: "202401"}, nil)
	if err != nil {
		t.Fatalf("SaveManualUpload: %v", err)
	}
	if resp.SavedCount != 0 || resp.PeriodKey != "2024.01" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSaveManualUploadRejectsBadMonth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := api.SaveManualUpload(context.Background(), store, api.ManualUploadRequest{SettlementMonth: "March"}, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMonthlySumsListAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.SeedPeriod(t, store, ledger.Synced, "2024.01", map[string]int64{"a": 100, "b": 50})
	testsupport.SeedPeriod(t, store, ledger.Synced, "2024.02", map[string]int64{"a": 70})
	testsupport.SeedPeriod(t, store, ledger.Synced, "2023.12", map[string]int64{"a": 1})

	monthly, err := api.MonthlySums(ctx, store, ledger.Synced, 2024)
	if err != nil {
		t.Fatalf("MonthlySums: %v", err)
	}
	if len(monthly.Sums) != 2 || monthly.Sums["2024-01"] != 150 || monthly.Sums["2024-02"] != 70 {
		t.Fatalf("unexpected monthly sums: %v", monthly.Sums)
	}
	if _, err := api.MonthlySums(ctx, store, ledger.Synced, 0); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for year 0, got %v", err)
	}

	list, err := api.ListRecords(ctx, store, ledger.Synced, "2024-01")
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(list.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(list.Records))
	}
	for _, rec := range list.Records {
		if rec.PeriodKey != "2024.01" || rec.CreatedAt == "" {
			t.Fatalf("unexpected record: %+v", rec)
		}
	}

	periods, err := api.ListPeriods(ctx, store, ledger.Synced)
	if err != nil {
		t.Fatalf("ListPeriods: %v", err)
	}
	if len(periods.Periods) != 3 || periods.Periods[0].PeriodKey != "2023.12" {
		t.Fatalf("unexpected periods: %+v", periods.Periods)
	}

	cleared, err := api.ClearPartition(ctx, store, ledger.Synced)
	if err != nil {
		t.Fatalf("ClearPartition: %v", err)
	}
	if cleared.Deleted != 4 {
		t.Fatalf("expected 4 deleted, got %d", cleared.Deleted)
	}
}

func TestNewErrorCarriesKind(t *testing.T) {
	err := services.Wrap(services.ErrAlreadySyncing, "syncer", "start", "run in progress", nil)
	resp := api.NewError(err)
	if resp.Status != "error" || resp.Kind != string(services.KindConflict) {
		t.Fatalf("unexpected error response: %+v", resp)
	}
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["status"] != "error" || decoded["message"] == "" {
		t.Fatalf("unexpected wire form: %s", data)
	}
}

func TestAmountMarshalsNull(t *testing.T) {
	data, err := json.Marshal(api.ManualUploadItem{Title: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"title":"x","amount":null}` {
		t.Fatalf("unexpected json: %s", data)
	}
}
