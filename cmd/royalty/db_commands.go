package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"royalty/internal/api"
	"royalty/internal/ipc"
	"royalty/internal/ledger"
)

func newDBCommand(ctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect and maintain the settlement store",
	}
	dbCmd.AddCommand(newDBStatusCommand(ctx))
	dbCmd.AddCommand(newDBMonthlyCommand(ctx))
	dbCmd.AddCommand(newDBListCommand(ctx))
	dbCmd.AddCommand(newDBPeriodsCommand(ctx))
	dbCmd.AddCommand(newDBClearCommand(ctx))
	dbCmd.AddCommand(newDBHealthCommand(ctx))
	return dbCmd
}

// partitionArg validates --partition values early so typos never reach the
// daemon. An empty value selects every partition.
func partitionArg(value string) ([]ledger.Partition, error) {
	if strings.TrimSpace(value) == "" {
		return ledger.Partitions, nil
	}
	partition, err := ledger.ParsePartition(value)
	if err != nil {
		return nil, err
	}
	return []ledger.Partition{partition}, nil
}

func singlePartition(value string) (ledger.Partition, error) {
	if strings.TrimSpace(value) == "" {
		return "", errors.New("--partition is required (synced or manual)")
	}
	return ledger.ParsePartition(value)
}

func newDBStatusCommand(ctx *commandContext) *cobra.Command {
	var partition string
	var sums bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show record count and total per partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			partitions, err := partitionArg(partition)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				results := make([]api.DBStatusResponse, 0, len(partitions))
				for _, p := range partitions {
					resp, err := client.DBStatus(ipc.DBStatusRequest{Partition: string(p), Sums: sums})
					if err != nil {
						return err
					}
					results = append(results, *resp)
				}
				return ctx.render(cmd, results, func() error {
					out := cmd.OutOrStdout()
					rows := make([][]string, 0, len(results))
					for _, r := range results {
						rows = append(rows, []string{r.Partition, formatAmount(r.RecordCount), formatAmount(r.TotalSum)})
					}
					fmt.Fprintln(out, renderTable([]string{"Partition", "Records", "Total"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
					if !sums {
						return nil
					}
					for _, r := range results {
						if len(r.Sums) == 0 {
							continue
						}
						fmt.Fprintf(out, "\n%s by title\n", r.Partition)
						fmt.Fprintln(out, renderTable([]string{"Title", "Total"}, titleRows(r.Sums), []columnAlignment{alignLeft, alignRight}))
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&partition, "partition", "p", "", "Partition (synced or manual); default both")
	cmd.Flags().BoolVar(&sums, "sums", false, "Include totals per title")
	return cmd
}

func titleRows(sums map[string]int64) [][]string {
	titles := make([]string, 0, len(sums))
	for title := range sums {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	rows := make([][]string, 0, len(titles))
	for _, title := range titles {
		rows = append(rows, []string{title, formatAmount(sums[title])})
	}
	return rows
}

func newDBMonthlyCommand(ctx *commandContext) *cobra.Command {
	var partition string
	var year int
	cmd := &cobra.Command{
		Use:   "monthly",
		Short: "Show monthly totals for one year",
		RunE: func(cmd *cobra.Command, args []string) error {
			partitions, err := partitionArg(partition)
			if err != nil {
				return err
			}
			if year == 0 {
				year = time.Now().Year()
			}
			return ctx.withClient(func(client *ipc.Client) error {
				results := make([]api.MonthlySumsResponse, 0, len(partitions))
				for _, p := range partitions {
					resp, err := client.MonthlySums(ipc.MonthlySumsRequest{Partition: string(p), Year: year})
					if err != nil {
						return err
					}
					results = append(results, *resp)
				}
				return ctx.render(cmd, results, func() error {
					fmt.Fprintln(cmd.OutOrStdout(), renderMonthlyTable(year, results))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&partition, "partition", "p", "", "Partition (synced or manual); default both")
	cmd.Flags().IntVarP(&year, "year", "y", 0, "Year (defaults to the current year)")
	return cmd
}

func renderMonthlyTable(year int, results []api.MonthlySumsResponse) string {
	headers := []string{"Month"}
	aligns := []columnAlignment{alignLeft}
	for _, r := range results {
		headers = append(headers, r.Partition)
		aligns = append(aligns, alignRight)
	}
	rows := make([][]string, 0, 12)
	totals := make([]int64, len(results))
	for month := 1; month <= 12; month++ {
		key := fmt.Sprintf("%04d-%02d", year, month)
		row := []string{key}
		for i, r := range results {
			value := r.Sums[key]
			totals[i] += value
			row = append(row, formatAmount(value))
		}
		rows = append(rows, row)
	}
	totalRow := []string{strconv.Itoa(year)}
	for _, total := range totals {
		totalRow = append(totalRow, formatAmount(total))
	}
	return renderTableWithFooter(headers, rows, totalRow, aligns)
}

func newDBListCommand(ctx *commandContext) *cobra.Command {
	var partition string
	var period string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored records of a partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := singlePartition(partition)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ListRecords(ipc.ListRecordsRequest{Partition: string(p), Period: period})
				if err != nil {
					return err
				}
				return ctx.render(cmd, resp, func() error {
					if len(resp.Records) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No records")
						return nil
					}
					rows := make([][]string, 0, len(resp.Records))
					for _, r := range resp.Records {
						rows = append(rows, []string{strconv.FormatInt(r.ID, 10), r.PeriodKey, r.Title, formatAmount(r.Amount)})
					}
					fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Period", "Title", "Amount"}, rows,
						[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight}))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&partition, "partition", "p", "", "Partition (synced or manual)")
	cmd.Flags().StringVar(&period, "period", "", "Only list one period (YYYY.MM)")
	return cmd
}

func newDBPeriodsCommand(ctx *commandContext) *cobra.Command {
	var partition string
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "List stored periods with counts and totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := singlePartition(partition)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ListPeriods(ipc.ListPeriodsRequest{Partition: string(p)})
				if err != nil {
					return err
				}
				return ctx.render(cmd, resp, func() error {
					if len(resp.Periods) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No periods")
						return nil
					}
					rows := make([][]string, 0, len(resp.Periods))
					for _, period := range resp.Periods {
						rows = append(rows, []string{period.PeriodKey, formatAmount(period.Count), formatAmount(period.Total)})
					}
					fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Period", "Records", "Total"}, rows,
						[]columnAlignment{alignLeft, alignRight, alignRight}))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&partition, "partition", "p", "", "Partition (synced or manual)")
	return cmd
}

func newDBClearCommand(ctx *commandContext) *cobra.Command {
	var partition string
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every record of a partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := singlePartition(partition)
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to clear %s without --yes", p)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ClearPartition(ipc.ClearPartitionRequest{Partition: string(p)})
				if err != nil {
					return err
				}
				return ctx.render(cmd, resp, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records from %s\n", resp.Deleted, resp.Partition)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVarP(&partition, "partition", "p", "", "Partition (synced or manual)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func newDBHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show database diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				health, err := client.DatabaseHealth()
				if err != nil {
					return err
				}
				return ctx.render(cmd, health, func() error {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Driver: %s\n", health.Driver)
					if health.Path != "" {
						fmt.Fprintf(out, "Path: %s\n", health.Path)
					}
					fmt.Fprintf(out, "Reachable: %s\n", yesNo(health.Reachable))
					fmt.Fprintf(out, "Schema version: %d\n", health.SchemaVersion)
					if len(health.MissingTables) > 0 {
						fmt.Fprintf(out, "Missing tables: %s\n", strings.Join(health.MissingTables, ", "))
					}
					if health.IntegrityCheck != "" {
						fmt.Fprintf(out, "Integrity: %s\n", health.IntegrityCheck)
					}
					if health.Error != "" {
						fmt.Fprintf(out, "Error: %s\n", health.Error)
					}
					return nil
				})
			})
		},
	}
}
