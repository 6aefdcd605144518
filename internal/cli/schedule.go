package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для управления schedules.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scan schedules",
	}

	cmd.AddCommand(
		newScheduleListCmd(clientFn, outputFn),
		newScheduleCreateCmd(clientFn, outputFn),
		newScheduleShowCmd(clientFn, outputFn),
		newScheduleUpdateCmd(clientFn, outputFn),
		newScheduleDeleteCmd(clientFn, outputFn),
		newScheduleEnableCmd(clientFn, outputFn),
		newScheduleDisableCmd(clientFn, outputFn),
	)

	return cmd
}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var domainFilter string
	var enabledOnly bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			opts := ListSchedulesOpts{Domain: domainFilter, Limit: limit}
			if enabledOnly {
				enabled := true
				opts.Enabled = &enabled
			}

			schedules, err := client.ListSchedules(opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "DOMAIN", "FREQUENCY", "SCAN_TYPE", "ENABLED", "NEXT_RUN", "LAST_STATUS"}
			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				rows[i] = []string{
					s.ID, s.Domain, formatFrequency(s.Frequency, s.TimeSpec), s.ScanType,
					strconv.FormatBool(s.Enabled), s.NextRunAt, s.LastStatus,
				}
			}

			out.Print(headers, rows, schedules)
			return nil
		},
	}

	cmd.Flags().StringVar(&domainFilter, "domain", "", "Filter by domain")
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Show only enabled schedules")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of schedules")

	return cmd
}

func newScheduleCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var frequency string
	var minute, hour, dayOfWeek, dayOfMonth int
	var cronExpr string
	var scanType string
	var profileID string
	var disabled bool
	var params []string

	cmd := &cobra.Command{
		Use:   "create DOMAIN",
		Short: "Create a scan schedule for a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateScheduleRequest{
				Domain:    args[0],
				ProfileID: profileID,
				Frequency: frequency,
				TimeSpec: TimeSpec{
					Minute:     minute,
					Hour:       hour,
					DayOfWeek:  dayOfWeek,
					DayOfMonth: dayOfMonth,
					CronExpr:   cronExpr,
				},
				Enabled:  !disabled,
				ScanType: scanType,
			}

			if len(params) > 0 {
				req.Params = make(map[string]any)
				for _, kv := range params {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid param format %q, expected KEY=VALUE", kv)
					}
					req.Params[parts[0]] = parts[1]
				}
			}

			schedule, err := client.CreateSchedule(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule created: %s", schedule.ID))
			out.Print(
				[]string{"ID", "DOMAIN", "FREQUENCY", "SCAN_TYPE", "ENABLED", "NEXT_RUN"},
				[][]string{{
					schedule.ID, schedule.Domain,
					formatFrequency(schedule.Frequency, schedule.TimeSpec),
					schedule.ScanType, strconv.FormatBool(schedule.Enabled), schedule.NextRunAt,
				}},
				schedule,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&frequency, "frequency", "daily", "Frequency: hourly, daily, weekly, monthly, custom")
	cmd.Flags().IntVar(&minute, "minute", 0, "Minute of the hour (0-59)")
	cmd.Flags().IntVar(&hour, "hour", 0, "Hour of the day in UTC (0-23)")
	cmd.Flags().IntVar(&dayOfWeek, "day-of-week", 0, "Day of week for weekly (0=Sunday)")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 1, "Day of month for monthly (1-31)")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression for custom frequency")
	cmd.Flags().StringVar(&scanType, "scan-type", "quick", "Scan type: quick or deep")
	cmd.Flags().StringVar(&profileID, "profile-id", "", "Scan profile ID")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Create the schedule disabled")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Scan params as KEY=VALUE (repeatable)")

	return cmd
}

func newScheduleShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show schedule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedule, err := client.GetSchedule(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "DOMAIN", "FREQUENCY", "SCAN_TYPE", "ENABLED", "NEXT_RUN", "LAST_RUN", "LAST_STATUS"},
				[][]string{{
					schedule.ID, schedule.Domain,
					formatFrequency(schedule.Frequency, schedule.TimeSpec),
					schedule.ScanType, strconv.FormatBool(schedule.Enabled),
					schedule.NextRunAt, schedule.LastRunAt, schedule.LastStatus,
				}},
				schedule,
			)
			return nil
		},
	}
}

func newScheduleUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var domainName string
	var frequency string
	var minute, hour, dayOfWeek, dayOfMonth int
	var cronExpr string
	var scanType string

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := UpdateScheduleRequest{}
			if cmd.Flags().Changed("domain") {
				req.Domain = &domainName
			}
			if cmd.Flags().Changed("frequency") {
				req.Frequency = &frequency
			}
			if cmd.Flags().Changed("scan-type") {
				req.ScanType = &scanType
			}

			// time_spec заменяется целиком, если изменено хоть одно поле
			timeSpecChanged := cmd.Flags().Changed("minute") ||
				cmd.Flags().Changed("hour") ||
				cmd.Flags().Changed("day-of-week") ||
				cmd.Flags().Changed("day-of-month") ||
				cmd.Flags().Changed("cron")
			if timeSpecChanged {
				req.TimeSpec = &TimeSpec{
					Minute:     minute,
					Hour:       hour,
					DayOfWeek:  dayOfWeek,
					DayOfMonth: dayOfMonth,
					CronExpr:   cronExpr,
				}
			}

			schedule, err := client.UpdateSchedule(args[0], req)
			if err != nil {
				return err
			}

			out.Success("Schedule updated")
			out.Print(
				[]string{"ID", "DOMAIN", "FREQUENCY", "SCAN_TYPE", "ENABLED", "NEXT_RUN"},
				[][]string{{
					schedule.ID, schedule.Domain,
					formatFrequency(schedule.Frequency, schedule.TimeSpec),
					schedule.ScanType, strconv.FormatBool(schedule.Enabled), schedule.NextRunAt,
				}},
				schedule,
			)
			return nil
		},
		Args: cobra.ExactArgs(1),
	}

	cmd.Flags().StringVar(&domainName, "domain", "", "New domain")
	cmd.Flags().StringVar(&frequency, "frequency", "", "New frequency")
	cmd.Flags().IntVar(&minute, "minute", 0, "Minute of the hour (0-59)")
	cmd.Flags().IntVar(&hour, "hour", 0, "Hour of the day in UTC (0-23)")
	cmd.Flags().IntVar(&dayOfWeek, "day-of-week", 0, "Day of week for weekly (0=Sunday)")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 1, "Day of month for monthly (1-31)")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression for custom frequency")
	cmd.Flags().StringVar(&scanType, "scan-type", "", "New scan type")

	return cmd
}

func newScheduleDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteSchedule(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule deleted: %s", args[0]))
			return nil
		},
	}
}

func newScheduleEnableCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "enable ID",
		Short: "Enable a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if _, err := client.EnableSchedule(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule enabled: %s", args[0]))
			return nil
		},
	}
}

func newScheduleDisableCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "disable ID",
		Short: "Disable a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if _, err := client.DisableSchedule(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Schedule disabled: %s", args[0]))
			return nil
		},
	}
}

// formatFrequency собирает человекочитаемое описание расписания.
func formatFrequency(frequency string, spec TimeSpec) string {
	switch frequency {
	case "hourly":
		return fmt.Sprintf("hourly @:%02d", spec.Minute)
	case "daily":
		return fmt.Sprintf("daily @%02d:%02d", spec.Hour, spec.Minute)
	case "weekly":
		return fmt.Sprintf("weekly dow=%d @%02d:%02d", spec.DayOfWeek, spec.Hour, spec.Minute)
	case "monthly":
		return fmt.Sprintf("monthly dom=%d @%02d:%02d", spec.DayOfMonth, spec.Hour, spec.Minute)
	case "custom":
		return "cron " + spec.CronExpr
	default:
		return frequency
	}
}
