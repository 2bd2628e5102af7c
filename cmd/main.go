package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"geofleet-sync/internal/api"
	"geofleet-sync/internal/cache"
	"geofleet-sync/internal/config"
	"geofleet-sync/internal/fetcher"
	"geofleet-sync/internal/geocode"
	"geofleet-sync/internal/store"
	"geofleet-sync/internal/syncer"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "geofleet-sync",
		Short: "GeoFleet Sync - vehicle position synchronization service",
		Long: `Periodically fetches per-vehicle positions from the fleet REST endpoint,
reconciles them into a local cache, optionally mirrors them into a remote
vehicle store, and resolves coordinates to addresses with a local cache.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.properties", "Path to configuration file")

	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(positionsCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(purgeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and opens the local cache database.
func setup() (*config.Config, *cache.Cache, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	configureLogging(cfg)

	c, err := cache.New(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening cache database: %w", err)
	}
	return cfg, c, nil
}

// configureLogging applies the log level and optional rotated file output.
func configureLogging(cfg *config.Config) {
	log.SetLevel(cfg.GetLogLevel())
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: false})
	log.SetOutput(os.Stdout)

	if cfg.LogFilePath == "" {
		return
	}

	logDir := filepath.Dir(cfg.LogFilePath)
	if _, err := os.Stat(logDir); os.IsNotExist(err) {
		if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
			log.Fatalf("failed to create log directory: %v", err)
		}
	}

	rotated := &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    100,
		MaxBackups: 30,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	}

	fileFmt := &log.TextFormatter{DisableColors: true, FullTimestamp: true}
	log.AddHook(lfshook.NewHook(lfshook.WriterMap{
		log.PanicLevel: rotated,
		log.FatalLevel: rotated,
		log.ErrorLevel: rotated,
		log.WarnLevel:  rotated,
		log.InfoLevel:  rotated,
		log.DebugLevel: rotated,
	}, fileFmt))
}

// buildOrchestrator wires the fetcher, caches and optional remote store.
// The returned store is nil when remote mirroring is disabled; the
// cleanup closes it when one was opened.
func buildOrchestrator(ctx context.Context, cfg *config.Config, c *cache.Cache) (*syncer.Orchestrator, *store.VehicleStore, func(), error) {
	f := fetcher.New(cfg.BaseURL, cfg.APIToken)

	opts := []syncer.Option{}
	cleanup := func() {}
	var vs *store.VehicleStore

	if cfg.RemoteDatabaseURL != "" {
		var err error
		vs, err = store.New(ctx, cfg.RemoteDatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, syncer.WithRemoteStore(vs))
		cleanup = vs.Close
	}
	if cfg.PositionRetentionDays > 0 {
		opts = append(opts, syncer.WithRetention(time.Duration(cfg.PositionRetentionDays)*24*time.Hour))
	}

	return syncer.New(f, c, cfg.VehicleIDs, cfg.SyncInterval, opts...), vs, cleanup, nil
}

// serverCmd runs the periodic sync loop together with the REST API.
func serverCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the periodic sync loop and the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, c, err := setup()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, vs, cleanup, err := buildOrchestrator(ctx, cfg, c)
			if err != nil {
				return err
			}
			defer cleanup()

			resolver := geocode.NewResolver(geocode.NewHTTPGeocoder(cfg.GeocoderURL), c)
			server := api.NewServer(c, resolver, vs, orch)

			go orch.Run(ctx)

			addr := fmt.Sprintf(":%d", port)
			httpSrv := &http.Server{Addr: addr, Handler: server.Router()}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				httpSrv.Shutdown(shutdownCtx)
			}()

			log.WithFields(log.Fields{
				"addr":     addr,
				"vehicles": len(cfg.VehicleIDs),
				"interval": cfg.SyncInterval,
			}).Info("starting geofleet-sync server")

			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Server port")
	return cmd
}

// syncCmd runs exactly one sync cycle and reports the outcome.
func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a single sync cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, c, err := setup()
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, _, cleanup, err := buildOrchestrator(ctx, cfg, c)
			if err != nil {
				return err
			}
			defer cleanup()

			u := orch.Sync(ctx)
			if u.Err != nil {
				return fmt.Errorf("sync failed: %w", u.Err)
			}

			fmt.Printf("Synced %d vehicles", len(u.Positions))
			if len(u.Failed) > 0 {
				fmt.Printf(", %d omitted: %v", len(u.Failed), u.Failed)
			}
			fmt.Println()
			return nil
		},
	}
}

// positionsCmd lists the cached positions.
func positionsCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "positions",
		Short: "List cached vehicle positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := setup()
			if err != nil {
				return err
			}
			defer c.Close()

			positions, err := c.GetAll()
			if err != nil {
				return fmt.Errorf("reading position cache: %w", err)
			}

			if outputFormat == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(positions)
			}

			if len(positions) == 0 {
				fmt.Println("No cached positions. Run 'geofleet-sync sync' first.")
				return nil
			}

			fmt.Printf("%-12s %-12s %-12s %s\n", "Vehicle", "Latitude", "Longitude", "Timestamp")
			for _, p := range positions {
				fmt.Printf("%-12s %-12.6f %-12.6f %s\n",
					p.VehicleID, p.Latitude, p.Longitude,
					time.UnixMilli(p.Timestamp).Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
	return cmd
}

// resolveCmd resolves a coordinate pair to an address.
func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [lat] [lng]",
		Short: "Resolve coordinates to a human-readable address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, c, err := setup()
			if err != nil {
				return err
			}
			defer c.Close()

			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid latitude %q", args[0])
			}
			lng, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid longitude %q", args[1])
			}

			resolver := geocode.NewResolver(geocode.NewHTTPGeocoder(cfg.GeocoderURL), c)
			fmt.Println(resolver.Resolve(cmd.Context(), lat, lng))
			return nil
		},
	}
}

// purgeCmd deletes cached positions older than the given age.
func purgeCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Purge cached positions older than N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, c, err := setup()
			if err != nil {
				return err
			}
			defer c.Close()

			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}

			threshold := time.Now().AddDate(0, 0, -days).UnixMilli()
			n, err := c.PurgeOlderThan(threshold)
			if err != nil {
				return fmt.Errorf("purging positions: %w", err)
			}

			fmt.Printf("Purged %d cached positions older than %d days\n", n, days)
			return nil
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 30, "Maximum age in days")
	return cmd
}
