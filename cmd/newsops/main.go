package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/newsops/internal/config"
	"github.com/TobiSchelling/newsops/internal/database"
	"github.com/TobiSchelling/newsops/internal/logger"
	"github.com/TobiSchelling/newsops/internal/pipeline"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        *slog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// printedError marks an error the command already showed as part of its
// step output.
type printedError struct{ err error }

func (e printedError) Error() string { return e.err.Error() }
func (e printedError) Unwrap() error { return e.err }

// reportError prints err unless the command has already shown it.
func reportError(w io.Writer, err error) {
	var printed printedError
	if errors.As(err, &printed) {
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

var rootCmd = &cobra.Command{
	Use:           "newsops",
	Short:         "Batch jobs for the news site",
	Long:          "newsops keeps the news site's city images, news archive, homepage feed and live stream status up to date.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := logger.ResolveLevel(cfg.Logging.Level)
		if verbose {
			level = "debug"
		}
		log = logger.New("newsops", level)
		slog.SetDefault(log)
		if path != "" {
			log.Debug("loaded config", "path", path)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(homepageCmd)
	rootCmd.AddCommand(streamsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newsops", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/newsops/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set site paths, image URLs and classification keywords.")
		return nil
	},
}

// --- job commands ---

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Download missing or truncated city images",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStep(func(p *pipeline.Pipeline) pipeline.StepResult {
			return p.RunImages(cmd.Context())
		})
	},
}

var skipHomepage bool

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Drop false positives, reclassify the archive and rebuild the homepage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStep(func(p *pipeline.Pipeline) pipeline.StepResult {
			return p.RunMaintain(cmd.Context(), skipHomepage)
		})
	},
}

func init() {
	maintainCmd.Flags().BoolVar(&skipHomepage, "skip-homepage", false, "Only clean the archive")
}

var homepageCmd = &cobra.Command{
	Use:   "homepage",
	Short: "Rebuild the homepage feed from today's and yesterday's archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStep(func(p *pipeline.Pipeline) pipeline.StepResult {
			return p.RunHomepage(cmd.Context())
		})
	},
}

var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "Check configured channels for matching live streams",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStep(func(p *pipeline.Pipeline) pipeline.StepResult {
			return p.RunStreams(cmd.Context())
		})
	},
}

// --- run command ---

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every job: images -> maintain -> streams",
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, closeLedger := openLedger()
		defer closeLedger()

		pipe := pipeline.New(cfg, ledger, log)

		var result *pipeline.Result
		if dryRun {
			result = pipe.DryRun(cmd.Context())
		} else {
			result = pipe.Run(cmd.Context())
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			printStep(step)
		}

		if err := result.Err(); err != nil {
			return printedError{err}
		}
		if !dryRun {
			fmt.Println("\nAll jobs complete.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last run of every job and the latest stream checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.LastRuns()
		if err != nil {
			return fmt.Errorf("reading runs: %w", err)
		}

		fmt.Printf("Ledger: %s\n\n", db.Path())
		fmt.Println("Last runs:")
		if len(runs) == 0 {
			fmt.Println("  (none)")
		}
		for _, r := range runs {
			fmt.Printf("  %-9s %-8s %s", r.Job, r.Status, r.StartedAt.Local().Format(time.DateTime))
			if d := r.Duration(); d > 0 {
				fmt.Printf(" (%s)", d.Round(time.Millisecond))
			}
			fmt.Println()
			if r.Summary != nil && *r.Summary != "" {
				fmt.Printf("            %s\n", *r.Summary)
			}
			if r.Error != nil {
				fmt.Printf("            error: %s\n", *r.Error)
			}
		}

		checks, err := db.LatestStreamChecks()
		if err != nil {
			return fmt.Errorf("reading stream checks: %w", err)
		}
		if len(checks) == 0 {
			return nil
		}
		fmt.Println("\nStreams:")
		for _, c := range checks {
			if !c.IsLive {
				fmt.Printf("  %-20s offline\n", c.DisplayName)
				continue
			}
			fmt.Printf("  %-20s live  %s (score %d)\n", c.DisplayName, deref(c.Title), c.MatchScore)
		}
		return nil
	},
}

func runStep(run func(*pipeline.Pipeline) pipeline.StepResult) error {
	ledger, closeLedger := openLedger()
	defer closeLedger()

	step := run(pipeline.New(cfg, ledger, log))
	printStep(step)
	if step.Err != nil {
		return printedError{step.Err}
	}
	return nil
}

func printStep(step pipeline.StepResult) {
	if step.Err != nil {
		fmt.Printf("  Error: %v\n", step.Err)
		return
	}
	fmt.Printf("  %s\n", step.Summary)
}

func openDB() (*database.DB, error) {
	return database.Open(filepath.Join(cfg.GetDataDir(), database.FileName), log)
}

// openLedger opens the run ledger. Without a usable database the jobs still
// run, just unrecorded.
func openLedger() (*database.Ledger, func()) {
	db, err := openDB()
	if err != nil {
		log.Warn("run ledger disabled", "error", err)
		return database.NewLedger(nil, log), func() {}
	}
	return database.NewLedger(db, log), func() { db.Close() }
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
