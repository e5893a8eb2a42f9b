package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/use-agent/carscout/models"
	"github.com/use-agent/carscout/store"
)

var (
	runsStatus    string
	runsLimit     int
	runsOlderThan time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(cmd.Context(), models.RunStatus(runsStatus), runsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tRECORDS\tCREATED")
		for _, r := range runs {
			records := "-"
			if r.Output != nil {
				records = fmt.Sprint(len(r.Output.Data))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Status, records, r.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a stored run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cps, err := st.Checkpoints(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON("", struct {
			*models.Run
			Checkpoints []models.Checkpoint `json:"checkpoints"`
		}{run, cps})
	},
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.DeleteRunsBefore(cmd.Context(), time.Now().Add(-runsOlderThan))
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d runs\n", n)
		return nil
	},
}

func openStore(ctx context.Context) (*store.SQLiteStore, error) {
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func init() {
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status (queued, running, completed, failed)")
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	runsPruneCmd.Flags().DurationVar(&runsOlderThan, "older-than", 30*24*time.Hour, "age of runs to delete")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsPruneCmd)
	rootCmd.AddCommand(runsCmd)
}
