// Package main implements the mqtt2influxdb command. It subscribes to the
// topics of a mapping document, turns each message into a time-series record
// and writes the records to InfluxDB and the optional NATS and file sinks.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/c360/mqtt2influxdb/config"
	"github.com/c360/mqtt2influxdb/mapping"
)

// Build information
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "mqtt2influxdb"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	cmd := newRootCmd(os.LookupEnv, os.Stdout)
	if err := cmd.Execute(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Flag defaults come from lookup so the
// environment can be replaced in tests.
func newRootCmd(lookup config.LookupFunc, stdout io.Writer) *cobra.Command {
	cfg, envErr := config.FromEnv(lookup)
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:     appName,
		Version: fmt.Sprintf("%s (build %s)", Version, BuildTime),
		Short:   "mqtt2influxdb - map MQTT messages to InfluxDB points",
		Long: `mqtt2influxdb subscribes to the src_topic of every entry in a mapping
document, extracts fields and tags from each payload and writes one point per
message to InfluxDB. Records can also be republished on NATS and archived as
JSON lines.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			if opts.Debug {
				cfg.Log.Level = "debug"
			}

			logger := setupLogger(stdout, cfg.Log.Level, cfg.Log.Format)
			slog.SetDefault(logger)

			if opts.Validate {
				return validateMapping(cfg.MappingPath, logger)
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger.Info("Starting mqtt2influxdb",
				"version", Version,
				"build_time", BuildTime,
				"config", cfg.String())

			return run(cmd.Context(), &cfg, logger)
		},
	}

	bindFlags(cmd.Flags(), &cfg, opts)
	cmd.AddCommand(newDumpCmd(stdout))
	return cmd
}

// validateMapping loads the mapping document and reports what it contains
func validateMapping(path string, logger *slog.Logger) error {
	if path == "" {
		return fmt.Errorf("mapping config path is required (--config or %s)", config.EnvMappingPath)
	}
	mcfg, err := mapping.LoadFile(path)
	if err != nil {
		return err
	}
	logger.Info("Mapping document is valid",
		"path", path,
		"entries", len(mcfg.Entries),
		"topics", mcfg.Topics())
	return nil
}
