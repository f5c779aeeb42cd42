package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"royalty/internal/api"
	"royalty/internal/daemon"
	"royalty/internal/ipc"
	"royalty/internal/ledger"
	"royalty/internal/logging"
	"royalty/internal/syncer"
	"royalty/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(testsupport.BaseDir(cfg), "royalty.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.StoreDriver != "sqlite" || len(status.Partitions) != len(ledger.Partitions) {
		t.Fatalf("unexpected status: %+v", status)
	}

	saveResp, err := client.SaveManual(api.ManualUploadRequest{
		SettlementMonth: "2024-03",
		DataToSave: []api.ManualUploadItem{
			{Title: "Alpha", Amount: api.NewAmount(1200)},
			{Title: "Beta", Amount: api.NewAmount(300.4)},
			{Title: "", Amount: api.NewAmount(10)},
		},
	})
	if err != nil {
		t.Fatalf("SaveManual failed: %v", err)
	}
	if saveResp.PeriodKey != "2024.03" || saveResp.SavedCount != 2 || saveResp.Skipped != 1 {
		t.Fatalf("unexpected save response: %+v", saveResp)
	}

	dbResp, err := client.DBStatus(ipc.DBStatusRequest{Partition: "upload", Sums: true})
	if err != nil {
		t.Fatalf("DBStatus failed: %v", err)
	}
	if dbResp.RecordCount != 2 || dbResp.TotalSum != 1500 {
		t.Fatalf("unexpected db status: %+v", dbResp)
	}

	monthly, err := client.MonthlySums(ipc.MonthlySumsRequest{Partition: "manual", Year: 2024})
	if err != nil {
		t.Fatalf("MonthlySums failed: %v", err)
	}
	if monthly.Sums["2024-03"] != 1500 {
		t.Fatalf("unexpected monthly sums: %+v", monthly.Sums)
	}

	records, err := client.ListRecords(ipc.ListRecordsRequest{Partition: "manual", Period: "2024.03"})
	if err != nil {
		t.Fatalf("ListRecords failed: %v", err)
	}
	if len(records.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records.Records))
	}

	periods, err := client.ListPeriods(ipc.ListPeriodsRequest{Partition: "manual"})
	if err != nil {
		t.Fatalf("ListPeriods failed: %v", err)
	}
	if len(periods.Periods) != 1 || periods.Periods[0].PeriodKey != "2024.03" {
		t.Fatalf("unexpected periods: %+v", periods.Periods)
	}

	if _, err := client.DBStatus(ipc.DBStatusRequest{Partition: "archive"}); err == nil {
		t.Fatal("expected unknown partition to fail")
	}

	next := time.Now().AddDate(1, 0, 0)
	syncResp, err := client.SyncStart(ipc.SyncStartRequest{StartDate: syncer.StartRequest{Year: next.Year(), Month: int(next.Month())}})
	if err != nil {
		t.Fatalf("SyncStart RPC failed: %v", err)
	}
	if syncResp.Status != api.StatusError || !strings.Contains(syncResp.Message, "no work to do") {
		t.Fatalf("unexpected sync start response: %+v", syncResp)
	}

	cancelResp, err := client.SyncCancel()
	if err != nil {
		t.Fatalf("SyncCancel failed: %v", err)
	}
	if cancelResp.Status != syncer.CancelStatusNotSyncing {
		t.Fatalf("expected not_syncing, got %q", cancelResp.Status)
	}

	health, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if !health.Reachable {
		t.Fatalf("expected reachable database: %+v", health)
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notify.Sent {
		t.Fatal("expected notification to be skipped without ntfy topic")
	}

	clearResp, err := client.ClearPartition(ipc.ClearPartitionRequest{Partition: "manual"})
	if err != nil {
		t.Fatalf("ClearPartition failed: %v", err)
	}
	if clearResp.Deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", clearResp.Deleted)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatalf("expected Stop to report stopped, got: %#v", stopResp)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := client.Status()
		if err != nil {
			t.Fatalf("Status after stop failed: %v", err)
		}
		if !status.Running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("daemon still running after stop")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
