package commands

import (
	"context"
	"sort"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/reposcout/candidate"
	"github.com/teranos/reposcout/db"
	"github.com/teranos/reposcout/db/runstore"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/metrics"
	"github.com/teranos/reposcout/pipeline"
	"github.com/teranos/reposcout/scout"
)

// RunCmd runs the pipeline for one request.
var RunCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Find repositories matching a request",
	Long: `Run the discovery pipeline for a free-text request.

Hardware named in the request ("RTX 3060", "24GB VRAM", "CPU only") is
extracted and used to drop repositories whose dependencies will not run on
it. Code-quality analysis runs when the request asks for it, or when few
enough candidates survive filtering.

Examples:
  scout run "llm inference server for an RTX 3060"
  scout run --json "python static analysis tools, check code quality"
  scout run --metrics-addr :9464 "vector database in go"`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	RunCmd.Flags().Bool("json", false, "Output the run as JSON")
	RunCmd.Flags().Bool("no-persist", false, "Do not record the run in the database")
	RunCmd.Flags().Bool("force-quality", false, "Always run code-quality analysis")
	RunCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running (overrides metrics.addr)")
}

// runOutput is the --json document.
type runOutput struct {
	RunID           string         `json:"run_id"`
	Request         string         `json:"request"`
	Query           string         `json:"query"`
	Hardware        string         `json:"hardware"`
	RunCodeAnalysis bool           `json:"run_code_analysis"`
	Candidates      candidate.List `json:"candidates"`
	Presentation    string         `json:"presentation"`
	Error           string         `json:"error,omitempty"`
}

func runRun(cmd *cobra.Command, args []string) error {
	useJSON, _ := cmd.Flags().GetBool("json")
	noPersist, _ := cmd.Flags().GetBool("no-persist")
	forceQuality, _ := cmd.Flags().GetBool("force-quality")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	verbosity, _ := cmd.Flags().GetCount("verbose")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if forceQuality {
		cfg.Decision.Force = true
	}
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	if metricsAddr != "" {
		srv, err := metrics.Serve(metricsAddr)
		if err != nil {
			return err
		}
		defer shutdownMetrics(srv)
		logger.Infow("Serving metrics", "addr", srv.Addr())
	}

	sc := scout.Config{Logger: logger.Logger}
	if cfg.Database.Persist && !noPersist {
		conn, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger.Named("db"))
		if err != nil {
			return errors.Wrap(err, "failed to open database")
		}
		defer conn.Close()
		sc.Recorder = runstore.New(conn, logger.Logger.Named("runstore"))
	}
	timings := &pipeline.Recorder{}
	sc.Observers = append(sc.Observers, timings)

	s, err := scout.New(cfg, sc)
	if err != nil {
		return err
	}

	var spinner *pterm.SpinnerPrinter
	if !useJSON {
		spinner, _ = pterm.DefaultSpinner.Start("Scouting repositories...")
	}
	start := time.Now()
	state, runErr := s.Run(ctx, args[0])
	if spinner != nil {
		_ = spinner.Stop()
	}

	if useJSON {
		out := runOutput{
			RunID:           state.RunID,
			Request:         state.Request,
			Query:           state.Query(),
			Hardware:        state.Hardware(),
			RunCodeAnalysis: state.RunCodeAnalysis(),
			Candidates:      state.Final(),
			Presentation:    state.Presentation(),
		}
		if runErr != nil {
			out.Error = runErr.Error()
		}
		if err := writeJSON(cmd, out); err != nil {
			return errors.Wrap(err, "failed to encode run")
		}
		return runErr
	}

	if runErr != nil {
		pterm.Error.Printfln("Run %s failed: %v", state.RunID, runErr)
		return runErr
	}

	pterm.Println(state.Presentation())
	pterm.Success.Printfln("Run %s finished in %s", state.RunID, time.Since(start).Round(time.Millisecond))
	if verbosity > 0 {
		printTimings(timings.Durations())
	}
	return nil
}

func printTimings(durations map[pipeline.StageName]time.Duration) {
	names := make([]string, 0, len(durations))
	for name := range durations {
		names = append(names, string(name))
	}
	sort.Strings(names)

	data := pterm.TableData{{"Stage", "Duration"}}
	for _, name := range names {
		data = append(data, []string{name, durations[pipeline.StageName(name)].Round(time.Millisecond).String()})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func shutdownMetrics(srv *metrics.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warnw("Metrics shutdown failed", logger.FieldError, err.Error())
	}
}
