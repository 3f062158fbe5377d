// ABOUTME: History commands list and inspect recorded anonymization runs
// ABOUTME: Shows run metadata and per-section outcomes; document text is never stored
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/harper/anonymizer/internal/app"
	"github.com/harper/anonymizer/internal/storage/sqlite"
)

// NewHistoryCmd creates the history command group
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past anonymization runs",
		Long: `Show past anonymization runs recorded in the local history database.

Only run metadata is kept: status, section counts, and which sections
failed. Document text and model output are never written to history.
Set ANONYMIZER_HISTORY=false to stop recording.`,
	}

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDeleteCmd())
	cmd.AddCommand(newHistoryPruneCmd())

	return cmd
}

// withHistory opens the history database for the duration of fn
func withHistory(fn func(history *sqlite.History) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	history, err := app.OpenHistory(cfg)
	if err != nil {
		return err
	}
	defer history.Close()

	return fn(history)
}

func newHistoryListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePositiveInt(limit, "limit"); err != nil {
				return err
			}
			return withHistory(func(history *sqlite.History) error {
				runs, err := history.ListRuns(limit)
				if err != nil {
					return fmt.Errorf("failed to list runs: %w", err)
				}
				return printRuns(cmd.OutOrStdout(), runs)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")

	return cmd
}

func printRuns(out io.Writer, runs []sqlite.RunSummary) error {
	if jsonOutput() {
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "STARTED\tSTATUS\tSECTIONS\tFAILED\tSOURCE\tRUN ID\n")
	fmt.Fprintf(w, "-------\t------\t--------\t------\t------\t------\n")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			humanize.Time(r.StartedAt),
			r.Status,
			r.Completed, r.Total,
			r.Failed,
			truncate(r.Source, 30),
			r.RunID,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTotal: %d run(s)\n", len(runs))
	return nil
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its section outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(history *sqlite.History) error {
				run, err := history.GetRun(args[0])
				if err != nil {
					return fmt.Errorf("failed to load run: %w", err)
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				return printRun(cmd.OutOrStdout(), run)
			})
		},
	}
}

func printRun(out io.Writer, run *sqlite.RunDetail) error {
	if jsonOutput() {
		return writeJSON(out, run)
	}

	fmt.Fprintf(out, "Run:      %s\n", run.RunID)
	fmt.Fprintf(out, "Source:   %s\n", run.Source)
	fmt.Fprintf(out, "Model:    %s/%s\n", run.Backend, run.Model)
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	fmt.Fprintf(out, "Started:  %s (%s)\n", run.StartedAt.Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(out, "Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(out, "Sections: %d of %d processed, %d kept original text\n", run.Completed, run.Total, run.Failed)
	if run.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", run.Error)
	}

	if len(run.Chunks) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SECTION\tRESULT\tOUTPUT\tERROR\n")
	for _, c := range run.Chunks {
		result := "ok"
		if !c.Succeeded {
			result = "kept original"
		}
		fmt.Fprintf(w, "%d\t%s\t%s chars\t%s\n", c.Index, result, humanize.Comma(int64(c.OutputChars)), truncate(c.ErrorDetail, 60))
	}
	return w.Flush()
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete one run from history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(history *sqlite.History) error {
				if err := history.DeleteRun(args[0]); err != nil {
					return fmt.Errorf("failed to delete run: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
				return nil
			})
		},
	}
}

func newHistoryPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 0 {
				return fmt.Errorf("keep must not be negative, got %d", keep)
			}
			return withHistory(func(history *sqlite.History) error {
				removed, err := history.Prune(keep)
				if err != nil {
					return fmt.Errorf("failed to prune history: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s), kept the newest %d\n", removed, keep)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 50, "Number of newest runs to keep")

	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintf(w, "%s\n", data)
	return nil
}
