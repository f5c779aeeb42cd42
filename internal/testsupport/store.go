package testsupport

import (
	"context"
	"testing"

	"royalty/internal/config"
	"royalty/internal/ledger"
	"royalty/internal/logging"
)

// MustOpenStore opens a ledger.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedPeriod replaces a period with the given title/amount pairs.
func SeedPeriod(t testing.TB, store *ledger.Store, partition ledger.Partition, periodKey string, amounts map[string]int64) {
	t.Helper()

	records := make([]ledger.Record, 0, len(amounts))
	for title, amount := range amounts {
		records = append(records, ledger.Record{PeriodKey: periodKey, Title: title, Amount: amount})
	}
	if _, err := store.ReplacePeriod(context.Background(), partition, periodKey, records); err != nil {
		t.Fatalf("seed %s %s: %v", partition, periodKey, err)
	}
}
