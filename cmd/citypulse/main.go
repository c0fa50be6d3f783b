package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/CityPulse/internal/aggregate"
	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/budget"
	"github.com/TobiSchelling/CityPulse/internal/collect"
	"github.com/TobiSchelling/CityPulse/internal/config"
	"github.com/TobiSchelling/CityPulse/internal/database"
	"github.com/TobiSchelling/CityPulse/internal/digest"
	"github.com/TobiSchelling/CityPulse/internal/pipeline"
	"github.com/TobiSchelling/CityPulse/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "citypulse",
	Short:   "Local news aggregation",
	Long:    "CityPulse gathers local news from feeds, Reddit, Hacker News and NewsAPI into ranked, deduplicated category lists.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		config.LoadEnv()
		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		collect.SetDebug(verbose || cfg.Debug())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("citypulse", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/citypulse/",
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
		fmt.Println("Edit it to configure your city, feeds and NewsAPI key variable.")
		return nil
	},
}

// --- status command ---

var probe bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored runs and source status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Store: %s\n\n", db.Path())
		fmt.Println("Runs:")
		fmt.Printf("  Stored: %d\n", stats.Runs)
		if stats.LatestRunAt != nil {
			fmt.Printf("  Latest: %s (%s)\n", digest.FormatRunTime(*stats.LatestRunAt, cfg.Location()), stats.LatestRunID)
		}
		fmt.Printf("  Articles: %d (%d distinct URLs)\n", stats.Articles, stats.DistinctURLs)
		fmt.Printf("  Backup searches: %d\n", stats.BackupCalls)
		if len(stats.SourceFailure) > 0 {
			fmt.Println("\nFailures by source:")
			for _, kind := range []article.SourceType{article.SourceFeed, article.SourceReddit, article.SourceHackerNews, article.SourceNewsAPI} {
				if n, ok := stats.SourceFailure[string(kind)]; ok {
					fmt.Printf("  %s: %d\n", kind, n)
				}
			}
		}

		if !probe {
			return nil
		}
		agg, err := aggregate.NewFromConfig(cfg, newBudget())
		if err != nil {
			return err
		}
		fmt.Println("\nSources:")
		for _, step := range pipeline.DryRun(cmd.Context(), agg.Adapters()).Steps {
			fmt.Printf("  %s: %s\n", step.Name, step.Summary)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&probe, "probe", false, "Check whether each source is reachable")
}

// --- fetch command ---

var (
	fetchCategory string
	useBackup     bool
	skipBackup    bool
	limit         int
	daysBack      int
	asMarkdown    bool
	noSave        bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one aggregation and save the snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := fetchOptions()
		if err != nil {
			return err
		}

		agg, err := aggregate.NewFromConfig(cfg, newBudget())
		if err != nil {
			return err
		}

		var store pipeline.Store
		if !noSave {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			store = db
		}

		result := pipeline.New(agg, store).Run(cmd.Context(), opts)
		if asMarkdown {
			fmt.Print(digest.Markdown(result.Snapshot))
		} else {
			printSnapshot(result)
		}
		for _, step := range result.Steps {
			if step.Err != nil {
				return fmt.Errorf("%s: %w", step.Name, step.Err)
			}
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchCategory, "category", "", "Fetch a single category (local, politics, economy, tech)")
	fetchCmd.Flags().BoolVar(&useBackup, "backup", false, "Also query NewsAPI for a single-category fetch")
	fetchCmd.Flags().BoolVar(&skipBackup, "skip-backup", false, "Never query NewsAPI")
	fetchCmd.Flags().IntVar(&limit, "limit", 0, "Articles per category (default from config)")
	fetchCmd.Flags().IntVar(&daysBack, "days-back", 0, "Lookback window in days (default from config)")
	fetchCmd.Flags().BoolVar(&asMarkdown, "markdown", false, "Print the result as a Markdown digest")
	fetchCmd.Flags().BoolVar(&noSave, "no-save", false, "Don't store the run")
	fetchCmd.MarkFlagsMutuallyExclusive("backup", "skip-backup")
}

func fetchOptions() (pipeline.Options, error) {
	opts := pipeline.Options{
		Limit:      cfg.Aggregation.Limit,
		DaysBack:   cfg.Aggregation.DaysBack,
		UseBackup:  useBackup,
		SkipBackup: skipBackup,
		NoSave:     noSave,
		KeepRuns:   cfg.Output.KeepRuns,
	}
	if fetchCategory != "" {
		c, err := article.ParseCategory(fetchCategory)
		if err != nil {
			return opts, err
		}
		opts.Category = c
	} else if useBackup {
		return opts, fmt.Errorf("--backup requires --category; full runs query NewsAPI automatically")
	}
	if limit > 0 {
		opts.Limit = limit
	}
	if daysBack > 0 {
		opts.DaysBack = daysBack
	}
	return opts, nil
}

func printSnapshot(r *pipeline.Result) {
	s := r.Snapshot
	for _, c := range s.OrderedCategories() {
		list := s.Category(c)
		fmt.Printf("\n%s (%d)\n", c, len(list))
		for i, a := range list {
			fmt.Printf("  %2d. [%d] %s\n      %s (%s)\n", i+1, a.Score, a.Title, a.URL, a.Source)
		}
	}
	fmt.Println()
	for _, step := range r.Steps {
		if step.Err != nil {
			fmt.Printf("%s: error: %v\n", step.Name, step.Err)
		} else {
			fmt.Printf("%s: %s\n", step.Name, step.Summary)
		}
	}
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port, cfg.Location())
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- watch command ---

var runNow bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run aggregations on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		// One budget for the life of the process so the daily NewsAPI cap
		// holds across scheduled runs.
		agg, err := aggregate.NewFromConfig(cfg, newBudget())
		if err != nil {
			return err
		}
		pipe := pipeline.New(agg, db)
		opts := pipeline.Options{
			Limit:    cfg.Aggregation.Limit,
			DaysBack: cfg.Aggregation.DaysBack,
			KeepRuns: cfg.Output.KeepRuns,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runOnce := func() {
			r := pipe.Run(ctx, opts)
			for _, step := range r.Steps {
				if step.Err != nil {
					log.Printf("Scheduled run %s failed at %s: %v", r.RunID, step.Name, step.Err)
					return
				}
			}
			log.Printf("Scheduled run %s complete: %d articles", r.RunID, r.Snapshot.Total())
		}

		c := cron.New(
			cron.WithLocation(cfg.Location()),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		)
		if _, err := c.AddFunc(cfg.Schedule.Cron, runOnce); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule.Cron, err)
		}

		if runNow {
			runOnce()
		}
		c.Start()
		next := c.Entries()[0].Schedule.Next(time.Now())
		log.Printf("Watching on schedule %q; next run at %s", cfg.Schedule.Cron,
			digest.FormatRunTime(next, cfg.Location()))

		<-ctx.Done()
		log.Println("Stopping scheduler...")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&runNow, "now", false, "Run once immediately before waiting for the schedule")
}

func newBudget() *budget.Daily {
	return budget.NewDaily(cfg.Sources.NewsAPI.DailyLimit, cfg.Location())
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "citypulse.db")
	return database.Open(dbPath)
}
