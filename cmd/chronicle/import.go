package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/chronicle/internal/application/handlers"
	"github.com/ersonp/chronicle/internal/domain/entities"
)

type importFlags struct {
	format string
	dryRun bool
}

func newImportCmd() *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Propose catalog changes from JSON or CSV",
		Long: `Reads one change per record and sends each through the same gate as
'propose': moderators apply directly, other users file change requests.
Every record is validated before anything is submitted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "auto", "File format (json, csv, auto)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Validate without submitting")

	return cmd
}

func runImport(cmd *cobra.Command, filePath string, flags importFlags) error {
	ctx := cmd.Context()

	return withActor(ctx, func(d *Deps, actor *entities.User) error {
		opts := handlers.ImportOptions{
			Format: flags.format,
			DryRun: flags.dryRun,
		}

		fmt.Printf("Importing %s...\n", filePath)

		result, err := d.Import.Handle(ctx, actor.ID, filePath, opts)
		if err != nil {
			return fmt.Errorf("importing file: %w", err)
		}

		if len(result.Errors) > 0 {
			fmt.Printf("\nValidation errors (%d):\n", len(result.Errors))
			for _, e := range result.Errors {
				fmt.Printf("  %s\n", e.Error())
			}
		}

		fmt.Println()
		if flags.dryRun {
			fmt.Printf("Dry run: %d of %d records are valid", result.Total-len(result.Errors), result.Total)
		} else {
			fmt.Printf("Applied: %d, proposed: %d", result.Applied, result.Proposed)
		}

		if len(result.Errors) > 0 {
			fmt.Printf(", %d errors", len(result.Errors))
		}

		fmt.Println()

		return nil
	})
}
