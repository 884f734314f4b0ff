package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatusCmd — состояние планировщика и задач.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scheduler status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := clientFn().Status()
			if err != nil {
				return err
			}
			return outputFn().Status(st)
		},
	}
}

// NewStartCmd запускает планировщик.
func NewStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := clientFn().Start()
			if err != nil {
				return err
			}
			return outputFn().Action(res, "Scheduler started", "Scheduler already running")
		},
	}
}

// NewStopCmd останавливает планировщик.
func NewStopCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := clientFn().Stop()
			if err != nil {
				return err
			}
			return outputFn().Action(res, "Scheduler stopped", "Scheduler already stopped")
		},
	}
}

// NewRunCmd запускает задачу вручную. Неуспешный run — ненулевой код выхода.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run JOB",
		Short: "Run a job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().RunJob(args[0], RunJobRequest{DryRun: dryRun})
			if err != nil {
				return err
			}

			if err := outputFn().Run(run); err != nil {
				return err
			}
			if run.Status == "failed" || run.Status == "timed-out" {
				return fmt.Errorf("job %s %s: %s", run.JobName, run.Status, run.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate without side effects")

	return cmd
}

// NewHistoryCmd — история выполнений.
func NewHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var job string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent job runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := clientFn().ListRuns(ListRunsOpts{Job: job, Limit: limit})
			if err != nil {
				return err
			}
			return outputFn().Runs(runs)
		},
	}

	cmd.Flags().StringVar(&job, "job", "", "Filter by job name")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (1-100, server default 20)")

	return cmd
}
