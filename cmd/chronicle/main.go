// Package main provides the entry point for the chronicle CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version        = "0.1.0-dev"
	globalAs       string
	globalPassword string
	globalLogLevel string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd := &cobra.Command{
		Use:           "chronicle",
		Short:         "A moderated catalog of historical persons, countries, events, documents and sources",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(globalLogLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&globalAs, "as", "", "Username to act as")
	rootCmd.PersistentFlags().StringVar(&globalPassword, "password", "", "Password for --as (default: $"+envPassword+")")
	rootCmd.PersistentFlags().StringVar(&globalLogLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")

	rootCmd.AddCommand(
		newInitCmd(),
		newUsersCmd(),
		newProposeCmd(),
		newCatalogCmd(),
		newImportCmd(),
		newRequestsCmd(),
		newApproveCmd(),
		newRejectCmd(),
		newSimilarCmd(),
		newStatsCmd(),
		newPurgeCmd(),
		newAuditCmd(),
		newReindexCmd(),
		newHealthCmd(),
		newMonitorCmd(),
	)

	return rootCmd.ExecuteContext(ctx)
}

// setupLogging configures the logrus standard logger. An empty level keeps
// the default until the config file is read.
func setupLogging(level string) error {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	log.SetOutput(os.Stderr)
	if level == "" {
		log.SetLevel(log.WarnLevel)
		return nil
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	return nil
}
