package inbox_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"royalty/internal/inbox"
	"royalty/internal/ledger"
	"royalty/internal/logging"
	"royalty/internal/testsupport"
)

func settlementRows() [][]any {
	return [][]any{
		{"작가명", "작품명", "출판사", "판매월", "총매출", "순매출", "정산액"},
		{"김작가", "검의 길", "문피아", "2024-03", 12000, 10000, 7000},
		{"이작가", "별의 노래", "리디", "2024.03", "5,000", "4,000", "2,800.6"},
		{"", "작가 없음", "리디", "2024-03", 1, 1, 1},
		{"합계", nil, nil, nil, nil, nil, 9800},
	}
}

func TestPeriodFromName(t *testing.T) {
	cases := map[string]string{
		"2024.03-문피아.xlsx": "2024.03",
		"202411.xlsx":       "2024.11",
		"2024-01 정산.xlsx":   "2024.01",
		"2024_12.xlsx":      "2024.12",
		"/tmp/x/202402.xlsx": "2024.02",
	}
	for name, want := range cases {
		got, ok := inbox.PeriodFromName(name)
		if !ok || got != want {
			t.Fatalf("PeriodFromName(%q) = %q, %v; want %q", name, got, ok, want)
		}
	}
	for _, name := range []string{"march.xlsx", "2024.13.xlsx", "24.03.xlsx"} {
		if got, ok := inbox.PeriodFromName(name); ok {
			t.Fatalf("expected %q to be rejected, got %q", name, got)
		}
	}
}

func TestImportReplacesManualPeriod(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithInbox())
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedPeriod(t, store, ledger.Manual, "2024.03", map[string]int64{"old": 1})
	path := filepath.Join(cfg.Paths.InboxDir, "2024.03-settlement.xlsx")
	testsupport.WriteWorkbook(t, path, settlementRows())

	w := inbox.New(cfg, store, logging.NewNop())
	result, err := w.Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.PeriodKey != "2024.03" || result.Rows != 2 || result.SavedCount != 2 || result.Deleted != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.BatchID == "" {
		t.Fatal("expected batch id")
	}
	total, err := store.SumAmount(context.Background(), ledger.Manual)
	if err != nil {
		t.Fatalf("SumAmount: %v", err)
	}
	if total != 7000+2801 {
		t.Fatalf("unexpected manual total %d", total)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected Import to leave the file in place: %v", err)
	}
}

func TestScanExistingMovesFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithInbox())
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.WriteWorkbook(t, filepath.Join(cfg.Paths.InboxDir, "202403.xlsx"), settlementRows())
	testsupport.WriteWorkbook(t, filepath.Join(cfg.Paths.InboxDir, "undated.xlsx"), settlementRows())
	if err := os.WriteFile(filepath.Join(cfg.Paths.InboxDir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	w := inbox.New(cfg, store, logging.NewNop())
	results := w.ScanExisting(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].SavedCount != 2 {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if results[1].Err == nil {
		t.Fatal("expected undated file to fail")
	}

	for _, want := range []string{
		filepath.Join(cfg.Paths.InboxDir, inbox.ProcessedDir, "202403.xlsx"),
		filepath.Join(cfg.Paths.InboxDir, inbox.FailedDir, "undated.xlsx"),
		filepath.Join(cfg.Paths.InboxDir, "notes.txt"),
	} {
		if _, err := os.Stat(want); err != nil {
			t.Fatalf("expected %s: %v", want, err)
		}
	}
}

func TestRunImportsDroppedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithInbox())
	store := testsupport.MustOpenStore(t, cfg)

	results := make(chan inbox.Result, 4)
	w := inbox.New(cfg, store, logging.NewNop(),
		inbox.WithSettleDelay(50*time.Millisecond),
		inbox.WithResultHandler(func(r inbox.Result) { results <- r }),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	}()

	// Give the watcher time to register before the file appears.
	time.Sleep(100 * time.Millisecond)
	staged := filepath.Join(testsupport.BaseDir(cfg), "staged.xlsx")
	testsupport.WriteWorkbook(t, staged, settlementRows())
	if err := os.Rename(staged, filepath.Join(cfg.Paths.InboxDir, "2024.05.xlsx")); err != nil {
		t.Fatalf("rename into inbox: %v", err)
	}

	select {
	case r := <-results:
		if r.Err != nil || r.PeriodKey != "2024.05" || r.SavedCount != 2 {
			t.Fatalf("unexpected result: %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for import")
	}
	count, err := store.Count(context.Background(), ledger.Manual)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 manual records, got %d", count)
	}
}
