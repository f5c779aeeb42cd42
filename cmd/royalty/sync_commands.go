package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"royalty/internal/api"
	"royalty/internal/events"
	"royalty/internal/ipc"
	"royalty/internal/ledger"
	"royalty/internal/syncer"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Drive a full sync against the publisher portal",
	}
	syncCmd.AddCommand(newSyncStartCommand(ctx))
	syncCmd.AddCommand(newSyncCancelCommand(ctx))
	syncCmd.AddCommand(newSyncStatusCommand(ctx))
	return syncCmd
}

func newSyncStartCommand(ctx *commandContext) *cobra.Command {
	var from string
	var follow bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a full sync from a month up to the current month",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseStartMonth(from)
			if err != nil {
				return err
			}
			if follow {
				return followSync(cmd, ctx, start)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SyncStart(ipc.SyncStartRequest{StartDate: start})
				if err != nil {
					return err
				}
				if resp.Status != api.StatusStarted {
					return fmt.Errorf("sync not started: %s", resp.Message)
				}
				return ctx.render(cmd, resp, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Sync %s started: %d months (%s to %s)\n", resp.RunID, resp.Units, resp.From, resp.To)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First month to sync (YYYY-MM); defaults to sync.default_start_year/month")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream progress over the HTTP API until the sync ends")
	return cmd
}

func newSyncCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the active sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SyncCancel()
				if err != nil {
					return err
				}
				return ctx.render(cmd, resp, func() error {
					if resp.Status == syncer.CancelStatusCancelled {
						fmt.Fprintln(cmd.OutOrStdout(), "Sync cancelled")
					} else {
						fmt.Fprintln(cmd.OutOrStdout(), "No sync in progress")
					}
					return nil
				})
			})
		},
	}
}

func newSyncStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync controller state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.SyncStatus()
				if err != nil {
					return err
				}
				return ctx.render(cmd, status, func() error {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "State: %s\n", status.State)
					if status.RunID == "" {
						return nil
					}
					fmt.Fprintf(out, "Run: %s\n", status.RunID)
					if status.CurrentMonth != "" {
						fmt.Fprintf(out, "Current month: %s\n", status.CurrentMonth)
					}
					fmt.Fprintf(out, "Progress: %d/%d (%d remaining)\n", status.Processed, status.Units, status.Remaining)
					if len(status.FailedMonths) > 0 {
						fmt.Fprintf(out, "Failed months: %s\n", strings.Join(status.FailedMonths, ", "))
					}
					return nil
				})
			})
		},
	}
}

// parseStartMonth accepts the same month spellings as period keys. An empty
// value leaves the start month to the daemon's configuration.
func parseStartMonth(value string) (syncer.StartRequest, error) {
	if strings.TrimSpace(value) == "" {
		return syncer.StartRequest{}, nil
	}
	key, err := ledger.NormalizePeriodKey(value)
	if err != nil {
		return syncer.StartRequest{}, fmt.Errorf("--from: %w", err)
	}
	year, _ := strconv.Atoi(key[:4])
	month, _ := strconv.Atoi(key[5:])
	return syncer.StartRequest{Year: year, Month: month}, nil
}

func syncSocketURL(bind, token string) (string, error) {
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "", fmt.Errorf("api.bind %q: %w", bind, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, port), Path: "/api/sync/ws"}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String(), nil
}

// followSync starts a sync over the websocket observer channel and prints
// every message until the run completes, is cancelled or fails.
func followSync(cmd *cobra.Command, ctx *commandContext, start syncer.StartRequest) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	target, err := syncSocketURL(cfg.API.Bind, cfg.API.Token)
	if err != nil {
		return err
	}

	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(runCtx, 5*time.Second)
	conn, _, err := websocket.Dial(dialCtx, target, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to sync channel: %w", err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(runCtx, conn, api.ClientMessage{Type: events.TypeStartFullSync, StartDate: start}); err != nil {
		return fmt.Errorf("send start request: %w", err)
	}
	var reply api.StartSyncResponse
	if err := wsjson.Read(runCtx, conn, &reply); err != nil {
		return fmt.Errorf("read start reply: %w", err)
	}
	if reply.Status != api.StatusStarted {
		return fmt.Errorf("sync not started: %s", reply.Message)
	}
	out := cmd.OutOrStdout()
	if ctx.outputFormat() == outputTable {
		fmt.Fprintf(out, "Sync %s started: %d months (%s to %s)\n", reply.RunID, reply.Units, reply.From, reply.To)
	}
	return streamSyncMessages(runCtx, conn, cmd, ctx)
}

func streamSyncMessages(runCtx context.Context, conn *websocket.Conn, cmd *cobra.Command, ctx *commandContext) error {
	out := cmd.OutOrStdout()
	for {
		var msg events.Message
		if err := wsjson.Read(runCtx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read sync message: %w", err)
		}
		if ctx.outputFormat() != outputTable {
			if err := ctx.render(cmd, msg, nil); err != nil {
				return err
			}
		} else {
			printSyncMessage(out, msg)
		}
		switch msg.Type {
		case events.TypeSyncComplete, events.TypeSyncCancelled:
			return nil
		case events.TypeSyncError:
			return fmt.Errorf("sync failed: %s", syncErrorText(msg))
		}
	}
}

func printSyncMessage(out io.Writer, msg events.Message) {
	switch msg.Type {
	case events.TypeProgressUpdate:
		if msg.Error != "" {
			fmt.Fprintf(out, "  %s  failed: %s\n", msg.Month, msg.Error)
			return
		}
		fmt.Fprintf(out, "  %s  fetching\n", msg.Month)
	case events.TypeSyncComplete:
		fmt.Fprintf(out, "Sync complete: total %s", formatAmount(msg.TotalSum))
		if len(msg.FailedMonths) > 0 {
			fmt.Fprintf(out, " (failed: %s)", strings.Join(msg.FailedMonths, ", "))
		}
		fmt.Fprintln(out)
	case events.TypeSyncCancelled:
		fmt.Fprintln(out, "Sync cancelled")
	case events.TypeSyncError:
		fmt.Fprintf(out, "Sync error: %s\n", syncErrorText(msg))
	default:
		fmt.Fprintf(out, "%s %s\n", msg.Type, msg.Message)
	}
}

func syncErrorText(msg events.Message) string {
	if msg.Message != "" {
		return msg.Message
	}
	return msg.Error
}
