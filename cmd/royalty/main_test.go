package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"royalty/internal/api"
	"royalty/internal/daemonctl"
	"royalty/internal/ipc"
	"royalty/internal/ledger"
	"royalty/internal/testsupport"
)

func TestUploadAndDBCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	file := filepath.Join(env.baseDir, "2024.03 settlement.xlsx")
	testsupport.WriteWorkbook(t, file, settlementRows())

	out, _, err := runCLI(t, []string{"upload", file}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	requireContains(t, out, "Saved 2 records for 2024.03")

	out, _, err = runCLI(t, []string{"--json", "db", "status", "--partition", "manual"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("db status: %v", err)
	}
	var statuses []api.DBStatusResponse
	if err := json.Unmarshal([]byte(out), &statuses); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if len(statuses) != 1 || statuses[0].RecordCount != 2 || statuses[0].TotalSum != 9800 {
		t.Fatalf("unexpected status: %+v", statuses)
	}

	out, _, err = runCLI(t, []string{"db", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("db status table: %v", err)
	}
	requireContains(t, out, "9,800")
	requireContains(t, out, "synced")

	out, _, err = runCLI(t, []string{"db", "periods", "-p", "upload"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("db periods: %v", err)
	}
	requireContains(t, out, "2024.03")

	out, _, err = runCLI(t, []string{"db", "monthly", "--year", "2024"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("db monthly: %v", err)
	}
	requireContains(t, out, "2024-03")

	out, _, err = runCLI(t, []string{"--yaml", "db", "list", "-p", "manual", "--period", "2024.03"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("db list: %v", err)
	}
	requireContains(t, out, "검의 길")

	if _, _, err := runCLI(t, []string{"db", "clear", "-p", "manual"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected clear without --yes to fail")
	}
	out, _, err = runCLI(t, []string{"db", "clear", "-p", "manual", "--yes"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("db clear: %v", err)
	}
	requireContains(t, out, "Removed 2 records from manual")

	if _, _, err := runCLI(t, []string{"db", "list", "-p", "archive"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown partition to fail")
	}
}

func TestUploadDryRunNeedsNoDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	file := filepath.Join(base, "march.xlsx")
	testsupport.WriteWorkbook(t, file, settlementRows())

	if _, _, err := runCLI(t, []string{"upload", "--dry-run", file}, filepath.Join(base, "none.sock"), configPath); err == nil {
		t.Fatal("expected month inference to fail for march.xlsx")
	}
	out, _, err := runCLI(t, []string{"upload", "--dry-run", "--month", "2024-3", file}, filepath.Join(base, "none.sock"), configPath)
	if err != nil {
		t.Fatalf("upload dry run: %v", err)
	}
	requireContains(t, out, "Settlement month 2024.03 (2 rows, not saved)")
	requireContains(t, out, "2,800")
}

func TestSyncCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	next := time.Now().AddDate(1, 0, 0).Format("2006-01")
	_, _, err := runCLI(t, []string{"sync", "start", "--from", next}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no work to do") {
		t.Fatalf("expected no work to do, got %v", err)
	}

	out, _, err := runCLI(t, []string{"sync", "cancel"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sync cancel: %v", err)
	}
	requireContains(t, out, "No sync in progress")

	out, _, err = runCLI(t, []string{"sync", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sync status: %v", err)
	}
	requireContains(t, out, "State: idle")

	if _, _, err := runCLI(t, []string{"sync", "start", "--from", "2024-13"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected invalid --from to fail")
	}
}

func TestSyncStartFollowStreamsProgress(t *testing.T) {
	portal := newPortalServer(t)
	env := setupCLITestEnv(t, testsupport.WithPortalBaseURL(portal.URL))

	month := time.Now().Format("2006-01")
	out, _, err := runCLI(t, []string{"sync", "start", "--follow", "--from", month}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sync start --follow: %v\n%s", err, out)
	}
	requireContains(t, out, "started: 1 months")
	requireContains(t, out, month+"  fetching")
	requireContains(t, out, "Sync complete: total 1,750")

	total, err := env.store.SumAmount(context.Background(), ledger.Synced)
	if err != nil {
		t.Fatalf("SumAmount: %v", err)
	}
	if total != 1750 {
		t.Fatalf("expected synced total 1750, got %d", total)
	}
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.SeedPeriod(t, env.store, ledger.Synced, "2024.01", map[string]int64{"Alpha": 1234567})

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "System Status")
	requireContains(t, out, "Running")
	requireContains(t, out, "1,234,567")

	out, _, err = runCLI(t, []string{"--json", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status json: %v", err)
	}
	var snapshot daemonctl.Snapshot
	if err := json.Unmarshal([]byte(out), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v\n%s", err, out)
	}
	if !snapshot.Status.Running {
		t.Fatalf("expected running daemon in snapshot: %+v", snapshot.Status)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"status"}, filepath.Join(base, "none.sock"), configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")

	if _, _, err := runCLI(t, []string{"db", "status"}, filepath.Join(base, "none.sock"), configPath); err == nil ||
		!strings.Contains(err.Error(), "royalty start") {
		t.Fatalf("expected dial hint, got %v", err)
	}
}

func TestAggregateCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	dir := filepath.Join(base, "sheets")
	testsupport.WriteWorkbook(t, filepath.Join(dir, "a.xlsx"), settlementRows())
	testsupport.WriteWorkbook(t, filepath.Join(dir, "b.xlsx"), [][]any{
		{"작가", "제목", "출판사", "판매월", "총매출", "순매출", "정산액"},
		{"박작가", "바다", "문피아", "2024-04", 1000, 900, 600},
	})
	target := filepath.Join(base, "out", "summary.xlsx")

	out, _, err := runCLI(t, []string{"aggregate", dir, "--out", target}, filepath.Join(base, "none.sock"), configPath)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	requireContains(t, out, "Wrote 3 rows from 2 files")
	requireContains(t, out, "합계")
	requireContains(t, out, "10,400")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected workbook at %s: %v", target, err)
	}

	out, _, err = runCLI(t, []string{"--json", "aggregate", dir, "--out", target}, filepath.Join(base, "none.sock"), configPath)
	if err != nil {
		t.Fatalf("aggregate json: %v", err)
	}
	var report struct {
		Rows  int `json:"rows"`
		Total struct {
			Count      int             `json:"건수"`
			Settlement decimal.Decimal `json:"정산액"`
		} `json:"total"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.Rows != 3 || report.Total.Count != 3 || !report.Total.Settlement.Equal(decimal.NewFromInt(10400)) {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
}

func TestParseStartMonth(t *testing.T) {
	start, err := parseStartMonth("2023/7")
	if err != nil {
		t.Fatalf("parseStartMonth: %v", err)
	}
	if start.Year != 2023 || start.Month != 7 {
		t.Fatalf("unexpected start: %+v", start)
	}
	if start, err := parseStartMonth(""); err != nil || start.Year != 0 {
		t.Fatalf("expected empty start, got %+v %v", start, err)
	}
}

func TestSyncSocketURL(t *testing.T) {
	got, err := syncSocketURL("0.0.0.0:7491", "secret")
	if err != nil {
		t.Fatalf("syncSocketURL: %v", err)
	}
	if got != "ws://127.0.0.1:7491/api/sync/ws?token=secret" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestFormatAmount(t *testing.T) {
	if got := formatAmount(1234567); got != "1,234,567" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := formatDecimal(decimal.RequireFromString("1500.5")); got != "1,500.50" {
		t.Fatalf("unexpected decimal format %q", got)
	}
}

func TestLogsCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	socket := filepath.Join(base, "none.sock")

	_, errOut, err := runCLI(t, []string{"logs"}, socket, configPath)
	if err != nil {
		t.Fatalf("logs without file: %v", err)
	}
	requireContains(t, errOut, "No log output yet")

	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	content := "INFO daemon started\nWARN unit failed month=2024-03\nINFO sync complete\n"
	if err := os.WriteFile(filepath.Join(cfg.Paths.LogDir, "royalty.log"), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, socket, configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "daemon started") {
		t.Fatalf("expected only the last two lines, got %q", out)
	}
	requireContains(t, out, "WARN unit failed")
	requireContains(t, out, "sync complete")

	out, _, err = runCLI(t, []string{"logs", "--grep", "WARN"}, socket, configPath)
	if err != nil {
		t.Fatalf("logs --grep: %v", err)
	}
	if strings.TrimSpace(out) != "WARN unit failed month=2024-03" {
		t.Fatalf("unexpected filtered output: %q", out)
	}
}

func TestConfigShowMasksSecrets(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	t.Setenv("ROYALTY_PORTAL_COOKIE", "session=abc")

	out, _, err := runCLI(t, []string{"config", "show"}, filepath.Join(base, "none.sock"), configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[portal]")
	requireContains(t, out, "<redacted>")
	if strings.Contains(out, "session=abc") {
		t.Fatalf("cookie leaked in output: %q", out)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")

	out, _, err = runCLI(t, []string{"--json", "test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify --json: %v", err)
	}
	var resp ipc.TestNotificationResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v (%q)", err, out)
	}
	if resp.Sent {
		t.Fatal("expected notification not sent without a topic")
	}
}
