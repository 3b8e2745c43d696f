package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/johndauphine/batchtune/internal/calibration"
	"github.com/johndauphine/batchtune/internal/config"
	"github.com/johndauphine/batchtune/internal/history"
	"github.com/johndauphine/batchtune/internal/logging"
	"github.com/johndauphine/batchtune/internal/progress"
	"github.com/johndauphine/batchtune/internal/transfer"
	"github.com/johndauphine/batchtune/internal/tuning"
	"github.com/johndauphine/batchtune/internal/util"
	"github.com/johndauphine/batchtune/internal/version"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    version.Name,
		Usage:   version.Description,
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "Path to configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (text, json)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Copy a file or URL in tuned chunks",
				Action: runTransfer,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "src",
						Usage:    "Source file path or http(s) URL",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "dst",
						Usage:    "Destination file path (- for stdout)",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "hexlify",
						Usage: "Write a hex view of the source",
					},
					&cli.BoolFlag{
						Name:  "dehexlify",
						Usage: "Convert a hex view back into bytes",
					},
					&cli.StringFlag{
						Name:  "encoding",
						Usage: "Encode text output into this charset",
					},
					&cli.StringFlag{
						Name:  "source-encoding",
						Usage: "Decode the source from this charset",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Tuning mode (off, stats, full)",
					},
					&cli.BoolFlag{
						Name:  "force-linear",
						Usage: "Scan every bucket instead of searching",
					},
					&cli.StringFlag{
						Name:  "max-batch",
						Usage: "Largest batch size, e.g. 4MiB",
					},
					&cli.IntFlag{
						Name:  "retune-every",
						Usage: "Chunks between tuning passes",
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Disable the progress bar",
					},
					&cli.BoolFlag{
						Name:  "no-history",
						Usage: "Do not record this run",
					},
				},
			},
			{
				Name:   "simulate",
				Usage:  "Drive the tuner with a synthetic cost model",
				Action: runSimulation,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "size",
						Value: "256MiB",
						Usage: "Modeled resource size",
					},
					&cli.StringFlag{
						Name:  "kinds",
						Value: "read,write",
						Usage: "Comma-separated operation kinds to model",
					},
					&cli.StringFlag{
						Name:  "strategy",
						Value: "auto",
						Usage: "Search strategy (auto, linear)",
					},
					&cli.IntFlag{
						Name:  "rounds",
						Value: 40,
						Usage: "Number of tuning passes",
					},
					&cli.IntFlag{
						Name:  "chunks-per-round",
						Value: 4,
						Usage: "Modeled chunks between tuning passes",
					},
					&cli.StringFlag{
						Name:  "peak",
						Usage: "Batch size the model performs best at (default 1/4 of max batch)",
					},
					&cli.StringFlag{
						Name:  "max-batch",
						Usage: "Largest batch size, e.g. 4MiB",
					},
					&cli.Int64Flag{
						Name:  "buckets",
						Usage: "Number of measurement buckets",
					},
					&cli.BoolFlag{
						Name:  "remote",
						Usage: "Model a remote resource",
					},
				},
			},
			{
				Name:  "history",
				Usage: "List all runs, or view details of a specific run",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Show details for a specific run ID",
					},
				},
				Action: showHistory,
			},
		},
	}
}

// loadConfig loads the config file and applies the global logging flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)
	logging.SetFormat(cfg.Logging.Format)
	return cfg, nil
}

// applyTuningFlags copies command flags over the tuning config.
func applyTuningFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet("mode") {
		if _, err := tuning.ParseMode(c.String("mode")); err != nil {
			return err
		}
		cfg.Tuning.Mode = c.String("mode")
	}
	if c.IsSet("max-batch") {
		n, err := util.ParseSize(c.String("max-batch"))
		if err != nil {
			return err
		}
		cfg.SetMaxBatchSize(n)
	}
	if c.IsSet("force-linear") {
		cfg.Tuning.ForceLinear = c.Bool("force-linear")
	}
	if c.IsSet("retune-every") {
		cfg.Tuning.RetuneEvery = c.Int("retune-every")
	}
	if c.IsSet("buckets") {
		cfg.Tuning.BucketCount = c.Int64("buckets")
	}
	return nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted. Stopping after the current chunk...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runTransfer(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := applyTuningFlags(c, cfg); err != nil {
		return err
	}

	opts := transfer.Options{
		RetuneEvery:    cfg.Tuning.RetuneEvery,
		ForceLinear:    cfg.Tuning.ForceLinear,
		Weight:         cfg.Weight,
		SourceEncoding: cfg.Transfer.SourceEncoding,
		TargetEncoding: cfg.Transfer.TargetEncoding,
		Hexlify:        cfg.Transfer.Hexlify || c.Bool("hexlify"),
		Dehexlify:      cfg.Transfer.Dehexlify || c.Bool("dehexlify"),
	}
	if c.IsSet("encoding") {
		opts.TargetEncoding = c.String("encoding")
	}
	if c.IsSet("source-encoding") {
		opts.SourceEncoding = c.String("source-encoding")
	}

	state, err := tuning.New(cfg.TuningSettings())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	src, err := transfer.OpenSource(ctx, c.String("src"), cfg.Transfer.HTTPTimeout)
	if err != nil {
		return err
	}
	defer src.Close()

	dstPath := c.String("dst")
	var dst io.Writer = os.Stdout
	report := io.Writer(os.Stdout)
	if dstPath == "-" {
		report = os.Stderr
	} else {
		f, err := os.Create(dstPath)
		if err != nil {
			return fmt.Errorf("creating destination: %w", err)
		}
		defer f.Close()
		dst = f
	}

	if !c.Bool("no-progress") {
		opts.Progress = progress.New()
	}

	hist := openHistory(cfg, c.Bool("no-history"))
	defer hist.Close()

	runID := history.NewRunID()
	if err := hist.CreateRun(runID, src.Name(), dstPath, cfg.Redacted()); err != nil {
		logging.Warn("Recording run: %v", err)
	}
	seq := 0
	opts.OnDecision = func(d tuning.Decision) {
		seq++
		if err := hist.SaveDecision(runID, history.FromTuning(seq, d, time.Now())); err != nil {
			logging.Warn("Recording decision: %v", err)
		}
	}

	start := time.Now()
	stats, runErr := transfer.Run(ctx, transfer.Job{Source: src, Dest: dst}, state, opts)

	status, errMsg := history.StatusSuccess, ""
	if runErr != nil {
		status, errMsg = history.StatusFailed, runErr.Error()
	}
	summary := history.Summary{FinalBatchSize: state.BatchSize(), Duration: time.Since(start)}
	if stats != nil {
		summary.BytesIn = stats.BytesIn
		summary.BytesOut = stats.BytesOut
		summary.Chunks = stats.Chunks
		summary.Retunes = stats.Retunes
	}
	if err := hist.CompleteRun(runID, summary, status, errMsg); err != nil {
		logging.Warn("Recording run result: %v", err)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(report, "Run %s: %s\n", runID, stats)
	fmt.Fprint(report, state.Snapshot().FormatTable())
	return nil
}

// openHistory opens the configured history backend. Failures are logged and
// fall back to recording nothing.
func openHistory(cfg *config.Config, disabled bool) history.Backend {
	if disabled {
		return history.Nop{}
	}
	hist, err := history.Open(cfg)
	if err != nil {
		logging.Warn("Run history unavailable: %v", err)
		return history.Nop{}
	}
	return hist
}

// parseStrategy reports whether the named strategy forces a linear scan.
func parseStrategy(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return false, nil
	case "linear":
		return true, nil
	default:
		return false, fmt.Errorf("invalid strategy %q (must be auto or linear)", s)
	}
}

func runSimulation(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := applyTuningFlags(c, cfg); err != nil {
		return err
	}

	size, err := util.ParseSize(c.String("size"))
	if err != nil {
		return err
	}
	forceLinear, err := parseStrategy(c.String("strategy"))
	if err != nil {
		return err
	}

	settings := cfg.TuningSettings()
	settings.Mode = tuning.ModeFull
	settings.ResourceSize = size
	settings.Remote = c.Bool("remote")
	settings.InitialBatchSize = 0
	state, err := tuning.New(settings)
	if err != nil {
		return err
	}

	peak := settings.MaxBatchSize / 4
	if c.IsSet("peak") {
		if peak, err = util.ParseSize(c.String("peak")); err != nil {
			return err
		}
	}
	profiles, err := calibration.Profiles(util.SplitCSV(c.String("kinds")), peak)
	if err != nil {
		return err
	}

	calibrator, err := calibration.NewCalibrator(state, profiles, calibration.Options{
		Rounds:         c.Int("rounds"),
		ChunksPerRound: c.Int("chunks-per-round"),
		ForceLinear:    forceLinear,
		Weight:         cfg.Weight,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := calibrator.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Simulating %s resource, peak at %s, kinds %s\n\n",
		util.FormatSize(size), util.FormatSize(peak), c.String("kinds"))
	fmt.Print(result.FormatResultsTable())
	fmt.Print(result.FormatRecommendation())
	fmt.Printf("Efficiency: %.1f%%\n\n", result.Efficiency(profiles, cfg.Weight)*100)
	fmt.Print(state.Snapshot().FormatTable())
	return nil
}

func showHistory(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.History.Backend == "none" {
		return fmt.Errorf("run history is disabled (history.backend: none)")
	}

	hist, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer hist.Close()

	// If --run flag is provided, show details for that specific run
	if runID := c.String("run"); runID != "" {
		run, err := hist.GetRunByID(runID)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %s not found", runID)
		}
		decisions, err := hist.GetDecisions(runID)
		if err != nil {
			return err
		}
		fmt.Print(formatRunDetails(run, decisions))
		return nil
	}

	runs, err := hist.GetAllRuns()
	if err != nil {
		return err
	}
	fmt.Print(formatRuns(runs))
	return nil
}

func formatRuns(runs []history.Run) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-10s %-20s %-8s %10s %8s %10s  %s\n",
		"ID", "Started", "Status", "Bytes", "Retunes", "Batch", "Source"))
	sb.WriteString(strings.Repeat("-", 90) + "\n")
	for _, r := range runs {
		sb.WriteString(fmt.Sprintf("%-10s %-20s %-8s %10s %8d %10s  %s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status,
			util.FormatSize(r.BytesIn), r.Retunes, util.FormatSize(r.FinalBatchSize), r.Source))
	}
	return sb.String()
}

func formatRunDetails(run *history.Run, decisions []history.Decision) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:         %s\n", run.ID))
	sb.WriteString(fmt.Sprintf("Source:      %s\n", run.Source))
	sb.WriteString(fmt.Sprintf("Destination: %s\n", run.Dest))
	sb.WriteString(fmt.Sprintf("Status:      %s\n", run.Status))
	sb.WriteString(fmt.Sprintf("Started:     %s\n", run.StartedAt.Local().Format(time.RFC3339)))
	if run.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("Completed:   %s (%s)\n",
			run.CompletedAt.Local().Format(time.RFC3339), run.Duration.Round(time.Millisecond)))
	}
	if run.Error != "" {
		sb.WriteString(fmt.Sprintf("Error:       %s\n", run.Error))
	}
	sb.WriteString(fmt.Sprintf("Transferred: %s in, %s out, %d chunks\n",
		util.FormatSize(run.BytesIn), util.FormatSize(run.BytesOut), run.Chunks))
	sb.WriteString(fmt.Sprintf("Batch size:  %s after %d retunes\n",
		util.FormatSize(run.FinalBatchSize), run.Retunes))

	if len(decisions) == 0 {
		sb.WriteString("\nNo tuning decisions recorded.\n")
		return sb.String()
	}
	sb.WriteString("\nDecisions:\n")
	sb.WriteString(fmt.Sprintf("  %4s  %-12s %-13s %10s %10s\n", "#", "Time", "Strategy", "From", "To"))
	for _, d := range decisions {
		sb.WriteString(fmt.Sprintf("  %4d  %-12s %-13s %10s %10s\n",
			d.Seq, d.Timestamp.Local().Format("15:04:05.000"), d.Strategy,
			util.FormatSize(d.Previous), util.FormatSize(d.BatchSize)))
	}
	return sb.String()
}
