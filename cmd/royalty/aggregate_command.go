package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"royalty/internal/aggregate"
	"royalty/internal/config"
	"royalty/internal/workbook"
)

type aggregateReport struct {
	Output    string                       `json:"output" yaml:"output"`
	Files     []string                     `json:"files" yaml:"files"`
	Skipped   []string                     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Rows      int                          `json:"rows" yaml:"rows"`
	Summaries []aggregate.PublisherSummary `json:"summaries" yaml:"summaries"`
	Total     aggregate.PublisherSummary   `json:"total" yaml:"total"`
}

func newAggregateCommand(ctx *commandContext) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "aggregate <dir>",
		Short: "Combine every workbook in a directory into one summary workbook",
		Long: "Extracts all .xlsx files in the directory, writes an AggregatedData sheet with the\n" +
			"combined rows and a Summary sheet with per-publisher totals. Works without the daemon.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			target, err := aggregateTarget(ctx, outPath, time.Now())
			if err != nil {
				return err
			}

			result, err := workbook.AggregateDirectory(dir, ctx.cliLogger())
			if err != nil {
				return err
			}
			if len(result.Entries) == 0 {
				return fmt.Errorf("no settlement rows found in %s", dir)
			}
			if err := workbook.ExportFile(target, result.Entries, result.Summaries); err != nil {
				return err
			}

			report := aggregateReport{
				Output:    target,
				Files:     result.Files,
				Skipped:   result.Skipped,
				Rows:      len(result.Entries),
				Summaries: result.Summaries,
				Total:     aggregate.Totals(result.Summaries),
			}
			return ctx.render(cmd, report, func() error {
				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(report.Summaries))
				for _, s := range report.Summaries {
					rows = append(rows, summaryCells(s))
				}
				fmt.Fprintln(out, renderTableWithFooter([]string{"출판사", "건수", "총매출", "순매출", "정산액"}, rows, summaryCells(report.Total),
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight}))
				if len(report.Skipped) > 0 {
					fmt.Fprintf(out, "Skipped unreadable files: %s\n", strings.Join(report.Skipped, ", "))
				}
				fmt.Fprintf(out, "Wrote %d rows from %d files to %s\n", report.Rows, len(report.Files), report.Output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output workbook (default <export_dir>/aggregated-<timestamp>.xlsx)")
	return cmd
}

func aggregateTarget(ctx *commandContext, outPath string, now time.Time) (string, error) {
	if strings.TrimSpace(outPath) != "" {
		return config.ExpandPath(outPath)
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("aggregated-%s.xlsx", now.Format("20060102-150405"))
	return filepath.Join(cfg.Paths.ExportDir, name), nil
}

func summaryCells(s aggregate.PublisherSummary) []string {
	return []string{
		s.Publisher,
		formatAmount(int64(s.Count)),
		formatDecimal(s.GrossRevenue),
		formatDecimal(s.NetRevenue),
		formatDecimal(s.SettlementAmount),
	}
}
