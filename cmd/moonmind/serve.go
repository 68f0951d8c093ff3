package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moonmind/moonmind/pkg/api"
	"github.com/moonmind/moonmind/pkg/artifacts"
	"github.com/moonmind/moonmind/pkg/events"
	"github.com/moonmind/moonmind/pkg/health"
	"github.com/moonmind/moonmind/pkg/manifest"
	"github.com/moonmind/moonmind/pkg/mcp"
	"github.com/moonmind/moonmind/pkg/metrics"
	"github.com/moonmind/moonmind/pkg/proposals"
	"github.com/moonmind/moonmind/pkg/queue"
	"github.com/moonmind/moonmind/pkg/registry"
	"github.com/moonmind/moonmind/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MoonMind queue server",
	Long: `Run the MoonMind API server together with its background loops:
the lease sweeper that retires expired claims and the metrics collector
that refreshes queue depth gauges.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (config file or MOONMIND_DATABASE_URL)")
	}
	initLogging(cfg)

	fmt.Println("Starting MoonMind queue server...")
	fmt.Printf("  Listen Address: %s\n", cfg.ListenAddr)
	fmt.Printf("  Artifact Root: %s\n", cfg.ArtifactRoot)
	fmt.Println()

	connectCtx, cancelConnect := context.WithTimeout(cmd.Context(), 10*time.Second)
	store, err := storage.NewPostgres(connectCtx, cfg.DatabaseURL, storage.Options{
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime(),
	})
	cancelConnect()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()
	fmt.Println("✓ Database connected")

	artifactStore, err := artifacts.NewLocalStore(cfg.ArtifactRoot)
	if err != nil {
		return fmt.Errorf("failed to open artifact root: %w", err)
	}
	fmt.Println("✓ Artifact store ready")

	// Assemble the service graph. The manifest normalizer resolves named
	// manifests through the registry, which shares the same store.
	hub := events.NewHub()
	var manifestOpts []manifest.Option
	if cfg.AllowManifestPathSource {
		manifestOpts = append(manifestOpts, manifest.WithPathSource())
	}
	manifests := manifest.NewNormalizer(cfg.ManifestRequiredCapabilities,
		registry.NewResolver(store), manifestOpts...)

	queueSvc := queue.NewService(store, artifactStore, hub, cfg, manifests)
	registrySvc := registry.NewService(store, queueSvc)
	proposalSvc := proposals.NewService(store, queueSvc, cfg,
		proposals.NewNotifier(store, cfg), nil)

	mcpServer, err := mcp.NewServer(queueSvc, Version)
	if err != nil {
		return fmt.Errorf("failed to build MCP server: %w", err)
	}

	checker := health.NewChecker(health.DefaultTimeout)
	checker.Register("database", health.DatabasePing(store))
	checker.Register("artifact-root", health.DirWritable(artifactStore.Root()))

	sweeper := queue.NewSweeper(store, cfg)
	sweeper.Start()
	defer sweeper.Stop()
	fmt.Println("✓ Lease sweeper started")

	collector := metrics.NewCollector(store, 0)
	collector.Start()
	defer collector.Stop()
	fmt.Println("✓ Metrics collector started")

	handler := api.NewHandler(queueSvc, proposalSvc, registrySvc, mcpServer, checker, cfg)
	server := api.NewServer(cfg, handler)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run(ctx)
	}()

	fmt.Println()
	fmt.Println("Server is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
		cancel()
		err = <-errCh
	case err = <-errCh:
	}
	if err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}
