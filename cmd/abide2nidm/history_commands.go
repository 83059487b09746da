package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"abide2nidm/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded batch runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *history.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						shortID(run.ID),
						formatTimestamp(run.StartedAt),
						formatDuration(run.Duration()),
						fmt.Sprintf("%d/%s", run.Workers, run.Isolation),
						strconv.Itoa(run.Total),
						strconv.Itoa(run.Complete),
						strconv.Itoa(run.Partial),
						strconv.Itoa(run.Missing),
					})
				}
				fmt.Fprintln(out, renderTable("", []string{"Run", "Started", "Duration", "Workers", "Total", "Complete", "Partial", "Missing"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight}))
				return nil
			})
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")

	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))
	return historyCmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the per-site results of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(store *history.Store) error {
				run, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run:      %s\n", run.ID)
				fmt.Fprintf(out, "Started:  %s\n", formatTimestamp(run.StartedAt))
				fmt.Fprintf(out, "Finished: %s\n", formatTimestamp(run.FinishedAt))
				fmt.Fprintf(out, "Workers:  %d (%s)\n", run.Workers, run.Isolation)
				fmt.Fprintf(out, "Forced:   %s\n", yesNo(run.Forced))
				fmt.Fprintf(out, "Summary:  %s\n", run.SummaryPath)

				rows := make([][]string, 0, len(run.Sites))
				for _, site := range run.Sites {
					rows = append(rows, []string{
						strconv.Itoa(site.Position + 1),
						site.Site,
						site.Status,
						yesNo(site.Success),
						formatDuration(site.Elapsed),
					})
				}
				fmt.Fprintln(out, renderTable("", []string{"#", "Site", "Status", "Unit OK", "Elapsed"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a number of days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}
			return withStore(ctx, func(store *history.Store) error {
				removed, err := store.PruneBefore(cmd.Context(), time.Now().AddDate(0, 0, -days))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d runs\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Keep runs newer than this many days")
	return cmd
}

func withStore(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
