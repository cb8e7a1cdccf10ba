package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/db"
	"github.com/teranos/reposcout/db/runstore"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
)

// RunsCmd groups the recorded-run commands.
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List and inspect recorded runs",
}

var runsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		useJSON, _ := cmd.Flags().GetBool("json")

		store, closeFn, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		runs, err := store.Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if useJSON {
			return writeJSON(cmd, runs)
		}
		if len(runs) == 0 {
			pterm.Info.Println("No runs recorded yet")
			return nil
		}

		data := pterm.TableData{{"ID", "Started", "Status", "Results", "Took", "Request"}}
		for _, r := range runs {
			data = append(data, []string{
				r.ID,
				r.StartedAt.Local().Format("2006-01-02 15:04"),
				r.Status,
				strconv.Itoa(r.Candidates),
				r.Duration.Round(time.Millisecond).String(),
				r.Request,
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the ranked candidates of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		useJSON, _ := cmd.Flags().GetBool("json")

		store, closeFn, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		cands, err := store.Candidates(cmd.Context(), args[0])
		if err != nil {
			if errors.IsNotFoundError(err) {
				return errors.WithHint(err, "list run IDs with: scout runs ls")
			}
			return err
		}
		if useJSON {
			return writeJSON(cmd, cands)
		}

		data := pterm.TableData{{"#", "Repository", "Stars", "Activity", "Quality", "Score"}}
		for i, c := range cands {
			data = append(data, []string{
				strconv.Itoa(i + 1),
				c.FullName,
				strconv.Itoa(c.Stars),
				activityCell(c),
				qualityCell(c),
				fmt.Sprintf("%.3f", candidate.Value(c.FinalScore)),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	runsLsCmd.Flags().Int("limit", 20, "Number of runs to list")
	runsLsCmd.Flags().Bool("json", false, "Output as JSON")
	runsShowCmd.Flags().Bool("json", false, "Output as JSON")

	RunsCmd.AddCommand(runsLsCmd)
	RunsCmd.AddCommand(runsShowCmd)
}

func openStore(cmd *cobra.Command) (*runstore.Store, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}
	conn, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger.Named("db"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open database")
	}
	return runstore.New(conn, logger.Logger.Named("runstore")), func() { _ = conn.Close() }, nil
}

func activityCell(c candidate.Candidate) string {
	if c.Activity == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", c.Activity.Score)
}

func qualityCell(c candidate.Candidate) string {
	if c.Quality == nil || (c.Quality.FileCount == 0 && c.Quality.Diagnostics == "") {
		return "-"
	}
	return strconv.Itoa(c.Quality.Score)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
