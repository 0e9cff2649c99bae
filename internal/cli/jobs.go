package cli

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"opportunity/internal/adapter/jobstore"
	"opportunity/internal/adapter/scheduler"
	"opportunity/internal/app"
	"opportunity/internal/config"
)

// NewJobsCmd prints a user's pending durable jobs.
func NewJobsCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List pending reminders of a Discord user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadDatabase()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			store, closeStore, err := jobstore.Open(cmd.Context(), app.StoreOptions(cfg), logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			sched := scheduler.New(scheduler.Config{
				Logger: logger,
				Stores: map[string]scheduler.JobStore{scheduler.StoreDefault: store},
			})
			jobs, err := sched.JobsForUser(cmd.Context(), user)
			if err != nil {
				return err
			}
			return printJobs(cmd.OutOrStdout(), jobs)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Discord user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printJobs(w io.Writer, jobs []*scheduler.Job) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, "No jobs found.")
		return err
	}
	scheduler.SortByRunTime(jobs)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTASK\tDUE (UTC)")
	for _, j := range jobs {
		due := "paused"
		if j.NextRunTime != nil {
			due = j.NextRunTime.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", j.ID, j.Kwargs[scheduler.KwargTaskName], due)
	}
	return tw.Flush()
}
