package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"royalty/internal/config"
	"royalty/internal/daemon"
	"royalty/internal/ipc"
	"royalty/internal/ledger"
	"royalty/internal/logging"
	"royalty/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *ledger.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	configPath := filepath.Join(base, "config.toml")

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(base, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	// The CLI reaches the HTTP API through api.bind, so record the bound port.
	cfg.API.Bind = d.APIAddress()
	writeTestConfig(t, configPath, cfg)

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	payload := map[string]any{
		"paths": map[string]any{
			"data_dir":   cfg.Paths.DataDir,
			"log_dir":    cfg.Paths.LogDir,
			"inbox_dir":  cfg.Paths.InboxDir,
			"export_dir": cfg.Paths.ExportDir,
		},
		"api": map[string]any{
			"bind": cfg.API.Bind,
		},
		"portal": map[string]any{
			"base_url": cfg.Portal.BaseURL,
		},
		"logging": map[string]any{
			"level": "error",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

const portalPage = `<html><body><table class="calculates"><tbody>
<tr class="item"><td>1</td><td><a>검의 길</a></td><td></td><td></td><td></td><td></td><td>1,500원</td></tr>
<tr class="item"><td>2</td><td><a>별의 노래</a></td><td></td><td></td><td></td><td></td><td>250</td></tr>
</tbody></table></body></html>`

func newPortalServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, portalPage)
	}))
	t.Cleanup(server.Close)
	return server
}

func settlementRows() [][]any {
	return [][]any{
		{"작가명", "작품명", "출판사", "판매월", "총매출", "순매출", "정산액"},
		{"김작가", "검의 길", "문피아", "2024-03", 12000, 10000, 7000},
		{"이작가", "별의 노래", "리디", "2024-03", "5,000", "4,000", "2,800"},
	}
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}
