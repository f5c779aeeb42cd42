package ledger_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"royalty/internal/ledger"
	"royalty/internal/logging"
	"royalty/internal/services"
	"royalty/internal/testsupport"
)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if store.Driver() != "sqlite" {
		t.Fatalf("expected sqlite driver, got %q", store.Driver())
	}
	if _, err := os.Stat(cfg.SQLitePath()); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := ledger.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	health, err := reopened.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.Reachable || health.SchemaVersion != 1 || len(health.TablesPresent) != 2 {
		t.Fatalf("unexpected health: %+v", health)
	}
	if health.IntegrityCheck != "ok" {
		t.Fatalf("unexpected integrity check: %q", health.IntegrityCheck)
	}
}

func TestInsertManySkipsInvalidRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	result, err := store.InsertMany(ctx, ledger.Manual, []ledger.Record{
		{PeriodKey: "2024.01", Title: "소설A", Amount: 100},
		{PeriodKey: "2024.01", Title: "  ", Amount: 50},
		{PeriodKey: "2024-13", Title: "소설B", Amount: 70},
		{PeriodKey: "202402", Title: "소설C", Amount: 30},
	})
	if err != nil {
		t.Fatalf("InsertMany: %v", err)
	}
	if result.SavedCount != 2 || result.Skipped != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	records, err := store.ScanAll(ctx, ledger.Manual)
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Title != "소설A" || records[0].PeriodKey != "2024.01" || records[0].Amount != 100 {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].PeriodKey != "2024.02" {
		t.Fatalf("expected normalized period key, got %q", records[1].PeriodKey)
	}
	if records[0].ID == 0 || records[0].CreatedAt.IsZero() {
		t.Fatalf("expected store-assigned fields, got %+v", records[0])
	}
}

func TestInsertManyEmptyBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	result, err := store.InsertMany(context.Background(), ledger.Synced, nil)
	if err != nil {
		t.Fatalf("InsertMany: %v", err)
	}
	if result.SavedCount != 0 {
		t.Fatalf("expected zero saved, got %d", result.SavedCount)
	}
}

func TestReplacePeriodIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	records := []ledger.Record{
		{Title: "소설A", Amount: 100},
		{Title: "소설B", Amount: 250},
	}
	for i := 0; i < 2; i++ {
		result, err := store.ReplacePeriod(ctx, ledger.Synced, "2024.03", records)
		if err != nil {
			t.Fatalf("ReplacePeriod #%d: %v", i+1, err)
		}
		if result.SavedCount != 2 {
			t.Fatalf("unexpected saved count: %+v", result)
		}
		if i == 1 && result.Deleted != 2 {
			t.Fatalf("expected second replace to delete previous rows, got %+v", result)
		}
	}

	count, err := store.Count(ctx, ledger.Synced)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 records after two replaces, got %d", count)
	}
	period, err := store.ScanPeriod(ctx, ledger.Synced, "2024-03")
	if err != nil {
		t.Fatalf("ScanPeriod: %v", err)
	}
	if len(period) != 2 || period[0].PeriodKey != "2024.03" {
		t.Fatalf("unexpected period rows: %+v", period)
	}
}

func TestReplacePeriodEmptyClearsPeriod(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedPeriod(t, store, ledger.Synced, "2024.04", map[string]int64{"소설A": 10})
	testsupport.SeedPeriod(t, store, ledger.Synced, "2024.05", map[string]int64{"소설A": 20})

	result, err := store.ReplacePeriod(ctx, ledger.Synced, "2024.04", nil)
	if err != nil {
		t.Fatalf("ReplacePeriod: %v", err)
	}
	if result.Deleted != 1 || result.SavedCount != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	total, err := store.SumAmount(ctx, ledger.Synced)
	if err != nil {
		t.Fatalf("SumAmount: %v", err)
	}
	if total != 20 {
		t.Fatalf("expected only 2024.05 to remain, total=%d", total)
	}
}

func TestPartitionsDoNotCollide(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedPeriod(t, store, ledger.Synced, "2024.01", map[string]int64{"소설A": 100})
	testsupport.SeedPeriod(t, store, ledger.Manual, "2024.01", map[string]int64{"소설A": 7})

	deleted, err := store.DeleteByPeriod(ctx, ledger.Manual, "2024.01")
	if err != nil {
		t.Fatalf("DeleteByPeriod: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one manual row deleted, got %d", deleted)
	}
	status, err := store.Status(ctx, ledger.Synced)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.RecordCount != 1 || status.TotalSum != 100 {
		t.Fatalf("synced partition affected: %+v", status)
	}
	none, err := store.DeleteByPeriod(ctx, ledger.Manual, "2023.01")
	if err != nil || none != 0 {
		t.Fatalf("expected zero deletions without error, got %d %v", none, err)
	}
}

func TestSumsAndMonthlySums(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedPeriod(t, store, ledger.Synced, "2023.12", map[string]int64{"소설A": 5})
	testsupport.SeedPeriod(t, store, ledger.Synced, "2024.01", map[string]int64{"소설A": 100, "소설B": 40})
	testsupport.SeedPeriod(t, store, ledger.Synced, "2024.12", map[string]int64{"소설B": 60})

	byTitle, err := store.SumAmountByTitle(ctx, ledger.Synced)
	if err != nil {
		t.Fatalf("SumAmountByTitle: %v", err)
	}
	if byTitle["소설A"] != 105 || byTitle["소설B"] != 100 {
		t.Fatalf("unexpected per-title sums: %v", byTitle)
	}

	monthly, err := store.MonthlySums(ctx, ledger.Synced, 2024)
	if err != nil {
		t.Fatalf("MonthlySums: %v", err)
	}
	if len(monthly) != 2 || monthly["2024-01"] != 140 || monthly["2024-12"] != 60 {
		t.Fatalf("unexpected monthly sums: %v", monthly)
	}

	periods, err := store.ListPeriods(ctx, ledger.Synced)
	if err != nil {
		t.Fatalf("ListPeriods: %v", err)
	}
	keys := make([]string, 0, len(periods))
	for _, p := range periods {
		keys = append(keys, p.PeriodKey)
	}
	if !sort.StringsAreSorted(keys) || len(keys) != 3 || periods[1].Count != 2 || periods[1].Total != 140 {
		t.Fatalf("unexpected periods: %+v", periods)
	}

	if _, err := store.MonthlySums(ctx, ledger.Synced, 12); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad year, got %v", err)
	}
}

func TestClearPartition(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedPeriod(t, store, ledger.Manual, "2024.01", map[string]int64{"a": 1, "b": 2})
	removed, err := store.Clear(ctx, ledger.Manual)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if count, _ := store.Count(ctx, ledger.Manual); count != 0 {
		t.Fatalf("expected empty partition, got %d", count)
	}
}

func TestClosedStoreReportsUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := store.Count(context.Background(), ledger.Synced); !errors.Is(err, services.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	store.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath()), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := ledger.SetSchemaVersionForTest(cfg.SQLitePath(), 99); err != nil {
		t.Fatalf("set version: %v", err)
	}
	if _, err := ledger.Open(cfg, logging.NewNop()); !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestWriteObserverReceivesDurations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	var ops []string
	store.SetWriteObserver(func(op string, partition ledger.Partition, _ time.Duration) {
		ops = append(ops, op+":"+string(partition))
	})
	testsupport.SeedPeriod(t, store, ledger.Synced, "2024.01", map[string]int64{"a": 1})
	if len(ops) != 1 || ops[0] != "replace:synced" {
		t.Fatalf("unexpected observed ops: %v", ops)
	}
}
