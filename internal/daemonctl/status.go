package daemonctl

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"royalty/internal/config"
	"royalty/internal/ipc"
	"royalty/internal/ledger"
	"royalty/internal/logging"
	"royalty/internal/syncer"
)

// StatusLine is one labelled check in the status report.
type StatusLine struct {
	Label    string `json:"label" yaml:"label"`
	Severity string `json:"severity" yaml:"severity"`
	Detail   string `json:"detail" yaml:"detail"`
}

// Snapshot is the combined daemon and configuration report printed by
// `royalty status`.
type Snapshot struct {
	Status ipc.StatusResponse `json:"status" yaml:"status"`
	Checks []StatusLine       `json:"checks" yaml:"checks"`
}

// BuildStatusSnapshot collects daemon status, reading partition totals
// straight from the store when the daemon is not reachable.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &Snapshot{}

	client, err := ipc.Dial(socketPath)
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil && resp != nil {
			snapshot.Status = *resp
		}
	}

	storeLine := StatusLine{Label: "Store", Severity: "ok", Detail: cfg.Store.Driver}
	if !snapshot.Status.Running {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		partitions, offlineErr := offlinePartitions(queryCtx, cfg)
		if offlineErr != nil {
			storeLine.Severity = "error"
			storeLine.Detail = offlineErr.Error()
		} else {
			snapshot.Status.Partitions = partitions
			snapshot.Status.StoreDriver = cfg.Store.Driver
		}
	}
	snapshot.Checks = BuildSystemChecks(cfg, snapshot.Status.Running, snapshot.Status.Sync.State)
	snapshot.Checks = append(snapshot.Checks, storeLine)
	return snapshot, nil
}

func offlinePartitions(ctx context.Context, cfg *config.Config) ([]ipc.DBStatusResponse, error) {
	if cfg.Store.Driver == "sqlite" {
		if _, err := os.Stat(cfg.SQLitePath()); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
	}
	store, err := ledger.Open(cfg, logging.NewNop())
	if err != nil {
		return nil, err
	}
	defer store.Close()

	out := make([]ipc.DBStatusResponse, 0, len(ledger.Partitions))
	for _, partition := range ledger.Partitions {
		status, err := store.Status(ctx, partition)
		if err != nil {
			return nil, err
		}
		out = append(out, ipc.DBStatusResponse{
			Partition:   string(partition),
			RecordCount: status.RecordCount,
			TotalSum:    status.TotalSum,
		})
	}
	return out, nil
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(cfg *config.Config, daemonRunning bool, syncState syncer.State) []StatusLine {
	lines := make([]StatusLine, 0, 6)
	if daemonRunning {
		lines = append(lines, StatusLine{Label: "Royalty", Severity: "ok", Detail: "Running"})
		detail := string(syncState)
		if detail == "" {
			detail = string(syncer.StateIdle)
		}
		lines = append(lines, StatusLine{Label: "Sync", Severity: "ok", Detail: detail})
	} else {
		lines = append(lines, StatusLine{Label: "Royalty", Severity: "warn", Detail: "Not running (run `royalty start`)"})
	}

	if strings.TrimSpace(cfg.Portal.Cookie) != "" {
		lines = append(lines, StatusLine{Label: "Portal", Severity: "ok", Detail: cfg.Portal.BaseURL})
	} else {
		lines = append(lines, StatusLine{Label: "Portal", Severity: "warn", Detail: "No session cookie (set ROYALTY_PORTAL_COOKIE)"})
	}

	if strings.TrimSpace(cfg.API.Token) != "" {
		lines = append(lines, StatusLine{Label: "HTTP API", Severity: "ok", Detail: cfg.API.Bind + " (token required)"})
	} else {
		lines = append(lines, StatusLine{Label: "HTTP API", Severity: "warn", Detail: cfg.API.Bind + " (no token)"})
	}

	var sinks []string
	if len(cfg.Events.KafkaBrokers) > 0 {
		sinks = append(sinks, "kafka")
	}
	if cfg.Events.MQTTBroker != "" {
		sinks = append(sinks, "mqtt")
	}
	if cfg.Events.NtfyTopic != "" {
		sinks = append(sinks, "ntfy")
	}
	if len(sinks) > 0 {
		lines = append(lines, StatusLine{Label: "Event Sinks", Severity: "ok", Detail: strings.Join(sinks, ", ")})
	} else {
		lines = append(lines, StatusLine{Label: "Event Sinks", Severity: "info", Detail: "None configured"})
	}

	if cfg.Inbox.Enabled {
		lines = append(lines, StatusLine{Label: "Inbox", Severity: "ok", Detail: cfg.Paths.InboxDir})
	} else {
		lines = append(lines, StatusLine{Label: "Inbox", Severity: "info", Detail: "Disabled"})
	}
	return lines
}
