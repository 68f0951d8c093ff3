package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moonmind/moonmind/pkg/config"
	"github.com/moonmind/moonmind/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "moonmind",
	Short: "MoonMind - Distributed agent job queue",
	Long: `MoonMind is the coordination core for a fleet of coding agents:
a Postgres-backed job queue with lease-based claims, cooperative
cancellation, artifact capture, live session brokering, task proposals,
and a manifest registry, exposed over REST and MCP.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"MoonMind version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
}

// loadConfig resolves the --config flag (or MOONMIND_CONFIG), falling back
// to the documented defaults when no file is given. Environment overrides
// keep deployment secrets out of the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("MOONMIND_CONFIG")
	}

	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if url := os.Getenv("MOONMIND_DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}
	if addr := os.Getenv("MOONMIND_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// initLogging configures the global logger from config.
func initLogging(cfg *config.Config) {
	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
		File:       cfg.LogFile,
	})
}
