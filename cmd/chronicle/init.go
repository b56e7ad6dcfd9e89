package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ersonp/chronicle/internal/application/handlers"
	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/infrastructure/config"
)

type initFlags struct {
	driver     string
	dsn        string
	admin      string
	adminEmail string
}

func newInitCmd() *cobra.Command {
	var flags initFlags

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new chronicle catalog",
		Long: `Creates a .chronicle directory with default configuration, creates the
database schema and, with --admin, the first administrator account.
Run it again on an existing directory to re-check the schema.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.driver, "driver", "", "Database driver (sqlite, postgres)")
	cmd.Flags().StringVar(&flags.dsn, "dsn", "", "Database connection string")
	cmd.Flags().StringVar(&flags.admin, "admin", "", "Username of the first administrator")
	cmd.Flags().StringVar(&flags.adminEmail, "admin-email", "", "Email of the first administrator")

	return cmd
}

func runInit(cmd *cobra.Command, flags initFlags) error {
	ctx := cmd.Context()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	if !config.Exists(cwd) || flags.driver != "" || flags.dsn != "" {
		path, err := handlers.WriteConfig(cwd, handlers.ConfigOptions{Driver: flags.driver, DSN: flags.dsn})
		if err != nil {
			return err
		}
		fmt.Printf("Created %s\n", path)
	}

	var req handlers.InitRequest
	if flags.admin != "" {
		req.Admin = &entities.NewUser{Username: flags.admin, Email: flags.adminEmail, Password: passwordFromFlags()}
	}

	return withInternalDeps(ctx, func(d *internalDeps) error {
		handler := handlers.NewInitHandler(d.repo, d.accounts)
		if d.index != nil {
			handler.WithCollection(d.index, d.embedder.Dimensions())
		}

		result, err := handler.Handle(ctx, req)
		if err != nil {
			return err
		}

		fmt.Printf("Database ready (%s)\n", d.pool.Driver())
		if result.Admin != nil {
			fmt.Printf("Created administrator %s\n", result.Admin.Username)
		}
		if result.IndexReady {
			fmt.Printf("Similarity collection ready: %s\n", d.Config.Qdrant.CollectionName())
		}
		fmt.Println("Chronicle initialized successfully!")
		return nil
	})
}
