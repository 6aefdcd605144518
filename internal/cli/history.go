package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewHistoryCmd создаёт группу команд для истории executions.
func NewHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect scan execution history",
	}

	cmd.AddCommand(
		newHistoryRecentCmd(clientFn, outputFn),
		newHistoryShowCmd(clientFn, outputFn),
		newHistoryForScheduleCmd(clientFn, outputFn),
		newHistoryStatsCmd(clientFn, outputFn),
	)

	return cmd
}

func newHistoryRecentCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recent executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			executions, err := client.ListRecentExecutions(hours)
			if err != nil {
				return err
			}

			out.Print(executionHeaders(), executionRows(executions), executions)
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "Look back period in hours")

	return cmd
}

func newHistoryShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			execution, err := client.GetExecution(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "SCHEDULE_ID", "DOMAIN", "STATUS", "STARTED", "COMPLETED", "DURATION", "SCAN_ID", "ERROR"},
				[][]string{{
					execution.ID, execution.ScheduleID, execution.Domain,
					execution.Status, execution.StartedAt, execution.CompletedAt,
					formatDuration(execution.DurationSec), execution.ScanID, execution.Error,
				}},
				execution,
			)
			return nil
		},
	}
}

func newHistoryForScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "for-schedule SCHEDULE_ID",
		Short: "List executions of a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			executions, err := client.ListScheduleExecutions(args[0], limit)
			if err != nil {
				return err
			}

			out.Print(executionHeaders(), executionRows(executions), executions)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of executions")

	return cmd
}

func newHistoryStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregated execution statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.GetStats(days)
			if err != nil {
				return err
			}

			out.Print(
				[]string{"PERIOD", "TOTAL", "SUCCESS", "FAILED", "SUCCESS_RATE", "AVG", "MIN", "MAX"},
				[][]string{{
					fmt.Sprintf("%dd", stats.PeriodDays),
					fmt.Sprintf("%d", stats.Total),
					fmt.Sprintf("%d", stats.Success),
					fmt.Sprintf("%d", stats.Failed),
					fmt.Sprintf("%.1f%%", stats.SuccessRate),
					formatDuration(stats.AvgDurationSec),
					formatDuration(stats.MinDurationSec),
					formatDuration(stats.MaxDurationSec),
				}},
				stats,
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "Aggregation period in days")

	return cmd
}

func executionHeaders() []string {
	return []string{"ID", "DOMAIN", "STATUS", "STARTED", "DURATION", "SCAN_ID"}
}

func executionRows(executions []ExecutionResponse) [][]string {
	rows := make([][]string, len(executions))
	for i, e := range executions {
		rows[i] = []string{
			e.ID, e.Domain, e.Status, e.StartedAt,
			formatDuration(e.DurationSec), e.ScanID,
		}
	}
	return rows
}

func formatDuration(sec float64) string {
	if sec <= 0 {
		return ""
	}
	return fmt.Sprintf("%.1fs", sec)
}
