package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"royalty/internal/api"
	"royalty/internal/extract"
	"royalty/internal/inbox"
	"royalty/internal/ipc"
	"royalty/internal/ledger"
	"royalty/internal/workbook"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var month string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "upload <file.xlsx>...",
		Short: "Replace one settlement month of the manual partition with spreadsheet rows",
		Long: "Reads each workbook with strict extraction and saves the combined rows as the manual\n" +
			"records of one settlement month. Existing manual records for that month are replaced.\n" +
			"Without --month the month is taken from the first file name (YYYY.MM*.xlsx or YYYYMM*.xlsx).",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildManualUpload(month, args, ctx.cliLogger())
			if err != nil {
				return err
			}
			if dryRun {
				return ctx.render(cmd, req, func() error {
					rows := make([][]string, 0, len(req.DataToSave))
					for _, item := range req.DataToSave {
						rows = append(rows, []string{item.Title, formatAmount(int64(item.Amount.Value))})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Settlement month %s (%d rows, not saved)\n", req.SettlementMonth, len(rows))
					fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Title", "Amount"}, rows, []columnAlignment{alignLeft, alignRight}))
					return nil
				})
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SaveManual(req)
				if err != nil {
					return err
				}
				return ctx.render(cmd, resp, func() error {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Saved %d records for %s\n", resp.SavedCount, resp.PeriodKey)
					if resp.Replaced > 0 {
						fmt.Fprintf(out, "Replaced %d previous records\n", resp.Replaced)
					}
					if resp.Skipped > 0 {
						fmt.Fprintf(out, "Skipped %d rows without a title or amount\n", resp.Skipped)
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&month, "month", "m", "", "Settlement month (YYYY.MM or YYYY-MM)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the extracted rows without saving")
	return cmd
}

// buildManualUpload extracts every file strictly and combines the rows into
// one saveManualUploadData payload.
func buildManualUpload(month string, files []string, logger *slog.Logger) (api.ManualUploadRequest, error) {
	month = strings.TrimSpace(month)
	if month == "" {
		inferred, ok := inbox.PeriodFromName(files[0])
		if !ok {
			return api.ManualUploadRequest{}, fmt.Errorf("--month is required: cannot infer a settlement month from %q", filepath.Base(files[0]))
		}
		month = inferred
	}
	periodKey, err := ledger.NormalizePeriodKey(month)
	if err != nil {
		return api.ManualUploadRequest{}, fmt.Errorf("--month: %w", err)
	}

	extractor := extract.New(logger)
	req := api.ManualUploadRequest{SettlementMonth: periodKey, DataToSave: []api.ManualUploadItem{}}
	for _, path := range files {
		if !workbook.IsWorkbook(path) {
			return api.ManualUploadRequest{}, fmt.Errorf("%s: only .xlsx and .xlsm workbooks are supported", path)
		}
		grid, err := workbook.ReadFile(path)
		if err != nil {
			return api.ManualUploadRequest{}, err
		}
		entries := extractor.Strict(grid)
		for _, entry := range entries {
			req.DataToSave = append(req.DataToSave, api.ManualUploadItem{
				Title:  entry.Title,
				Amount: api.NewAmount(entry.SettlementAmount.Round(0).InexactFloat64()),
			})
		}
	}
	if len(req.DataToSave) == 0 {
		return api.ManualUploadRequest{}, errors.New("no settlement rows found in the given files")
	}
	return req, nil
}
