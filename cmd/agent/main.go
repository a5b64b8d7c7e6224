// Command agent discovers restaurants around Katy, TX through Google Places
// and keeps the listing database in sync.
//
// Usage:
//
//	ekaty-agent sync [--force] [--dry-run]
//	ekaty-agent verify <place-id>
//	ekaty-agent stats [--stale-days 7] [--limit 10]
//	ekaty-agent health
//	ekaty-agent serve
//	ekaty-agent migrate
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
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ekaty/ekaty-agent/internal/alert"
	"github.com/ekaty/ekaty-agent/internal/config"
	"github.com/ekaty/ekaty-agent/internal/discovery"
	"github.com/ekaty/ekaty-agent/internal/health"
	"github.com/ekaty/ekaty-agent/internal/logging"
	"github.com/ekaty/ekaty-agent/internal/maintenance"
	"github.com/ekaty/ekaty-agent/internal/places"
	"github.com/ekaty/ekaty-agent/internal/store"
	"github.com/ekaty/ekaty-agent/internal/syncer"
	"github.com/ekaty/ekaty-agent/internal/transform"
)

// errUnhealthy makes `health` exit non-zero without a second error line.
var errUnhealthy = errors.New("one or more health checks failed")

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "ekaty-agent",
		Short:         "Restaurant listing sync agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(syncCmd())
	root.AddCommand(verifyCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(healthCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		if !errors.Is(err, errUnhealthy) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// Runtime wiring
// --------------------------------------------------------------------------

// app is everything a command needs once config is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  store.Store
	client *places.Client
	engine *syncer.Engine
	alert  *alert.Webhook
}

// run loads config, opens the store and hands a ready app to fn. The context
// is cancelled on SIGINT or SIGTERM.
func run(opts syncer.Options, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  st,
		alert:  alert.NewWebhook(cfg.AlertEnabled, cfg.AlertWebhookURL, logger),
	}
	a.client = places.NewClient(cfg.PlacesBaseURL, cfg.GoogleAPIKey, cfg.RateLimitDelay, logger)

	search := discovery.New(a.client, discovery.Options{
		PlaceType:      cfg.PlaceType,
		PageTokenDelay: cfg.PageTokenDelay,
	}, logger)
	fetcher := syncer.NewDetailFetcher(a.client, syncer.FetcherOptions{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Workers:    cfg.DetailWorkers,
	}, logger)

	opts.Center = places.LatLng{Lat: cfg.LocationLat, Lng: cfg.LocationLng}
	opts.Radius = cfg.SearchRadius
	opts.StaleDays = cfg.StaleDays
	a.engine = syncer.NewEngine(search, fetcher, transform.New(logger), st, opts, logger)

	return fn(ctx, a)
}

func (a *app) requireAPIKey() error {
	if !a.cfg.HasAPIKey() {
		return errors.New("GOOGLE_API_KEY is not configured")
	}
	return nil
}

// --------------------------------------------------------------------------
// sync command
// --------------------------------------------------------------------------

func syncCmd() *cobra.Command {
	var force, dryRun bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Discover, fetch and import restaurants from Google Places",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(syncer.Options{DryRun: dryRun}, func(ctx context.Context, a *app) error {
				if !a.cfg.SyncEnabled && !force {
					a.logger.Warn("Sync is disabled (SYNC_ENABLED=false); use --force to override")
					return nil
				}
				if err := a.requireAPIKey(); err != nil {
					return err
				}

				hook := maintenance.AfterSync(ctx, a.alert, nil, a.logger)
				stats, err := a.engine.Sync(ctx)
				hook(stats, err)

				if stats != nil {
					printRunStats(cmd.OutOrStdout(), stats)
				}
				if err != nil {
					return fmt.Errorf("sync failed: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Run even when SYNC_ENABLED=false")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Fetch and transform without writing")
	return cmd
}

func printRunStats(w io.Writer, s *syncer.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tVALUE")
	fmt.Fprintf(tw, "Discovered\t%d\n", s.Discovered)
	fmt.Fprintf(tw, "Details fetched\t%d\n", s.Detailed)
	fmt.Fprintf(tw, "Transformed\t%d\n", s.Transformed)
	fmt.Fprintf(tw, "Imported\t%d\n", s.Imported)
	fmt.Fprintf(tw, "Errors\t%d\n", s.Errors)
	fmt.Fprintf(tw, "Stale\t%d\n", s.Stale)
	fmt.Fprintf(tw, "Duration\t%.2fs\n", s.Duration.Seconds())
	tw.Flush()

	if s.Success {
		fmt.Fprintln(w)
		printStoreStats(w, s)
	}
}

func printStoreStats(w io.Writer, s *syncer.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATABASE\tVALUE")
	fmt.Fprintf(tw, "Total restaurants\t%d\n", s.Total)
	fmt.Fprintf(tw, "Active\t%d\n", s.Active)
	fmt.Fprintf(tw, "Inactive\t%d\n", s.Inactive)
	fmt.Fprintf(tw, "Average rating\t%.2f\n", s.AvgRating)
	tw.Flush()
}

// --------------------------------------------------------------------------
// verify command
// --------------------------------------------------------------------------

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <place-id>",
		Short: "Re-fetch and upsert a single place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(syncer.Options{}, func(ctx context.Context, a *app) error {
				if err := a.requireAPIKey(); err != nil {
					return err
				}
				res := a.engine.VerifyRestaurant(ctx, args[0])
				if !res.Success {
					return fmt.Errorf("verification failed: %s", res.Error)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Verified %s (%s)\n", res.Name, res.ID)
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// stats command
// --------------------------------------------------------------------------

func statsCmd() *cobra.Command {
	var staleDays, limit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show listing statistics and stale listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(syncer.Options{}, func(ctx context.Context, a *app) error {
				s, err := a.engine.Stats(ctx)
				if err != nil {
					return fmt.Errorf("load stats: %w", err)
				}
				out := cmd.OutOrStdout()
				printStoreStats(out, s)

				stale, err := a.store.Stale(ctx, staleDays)
				if err != nil {
					return fmt.Errorf("load stale listings: %w", err)
				}
				fmt.Fprintf(out, "\nStale listings (not verified in %d days): %d\n", staleDays, len(stale))
				if len(stale) == 0 {
					return nil
				}

				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tLAST VERIFIED")
				for i, r := range stale {
					if i == limit {
						break
					}
					verified := "never"
					if r.LastVerified != nil {
						verified = r.LastVerified.In(a.cfg.Location()).Format("2006-01-02 15:04")
					}
					fmt.Fprintf(tw, "%s\t%s\n", r.Name, verified)
				}
				tw.Flush()
				if len(stale) > limit {
					fmt.Fprintf(out, "... and %d more\n", len(stale)-limit)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&staleDays, "stale-days", 7, "Days since last verification")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum stale listings to print")
	return cmd
}

// --------------------------------------------------------------------------
// health command
// --------------------------------------------------------------------------

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database, API key, Places API access and disk space",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(syncer.Options{}, func(ctx context.Context, a *app) error {
				checker := &health.Checker{
					Store:     a.store,
					Searcher:  a.client,
					APIKey:    a.cfg.GoogleAPIKey,
					Center:    places.LatLng{Lat: a.cfg.LocationLat, Lng: a.cfg.LocationLng},
					PlaceType: a.cfg.PlaceType,
					DiskPath:  diskPath(a.cfg),
				}
				report := checker.Run(ctx)

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "CHECK\tSTATUS\tMESSAGE")
				for _, c := range report.Checks {
					status := "OK"
					if !c.OK {
						status = "FAIL"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, status, c.Message)
				}
				tw.Flush()

				if !report.Healthy {
					return errUnhealthy
				}
				return nil
			})
		},
	}
}

func diskPath(cfg *config.Config) string {
	if cfg.DBType == config.DBTypeSQLite && cfg.DBPath != ":memory:" {
		return filepath.Dir(cfg.DBPath)
	}
	return "."
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the store applies pending migrations.
			return run(syncer.Options{}, func(ctx context.Context, a *app) error {
				a.logger.Info("Database schema is up to date", "db_type", a.cfg.DBType)
				return nil
			})
		},
	}
}
