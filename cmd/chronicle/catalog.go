package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse catalog entries",
	}

	cmd.AddCommand(newCatalogListCmd(), newCatalogShowCmd())

	return cmd
}

func newCatalogListCmd() *cobra.Command {
	var (
		limit  int
		offset int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List entries of one type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				result, err := d.Catalog.HandleList(ctx, args[0], limit, offset)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(result.Records)
				}
				if len(result.Records) == 0 {
					fmt.Println("No entries found.")
					return nil
				}

				fmt.Printf("Showing %d entries:\n\n", len(result.Records))
				for i := range result.Records {
					displayRecord(&result.Records[i])
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultListLimit, "Maximum number of entries to display")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of entries to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func newCatalogShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <type> <id>",
		Short: "Show one entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withDeps(ctx, func(d *Deps) error {
				rec, err := d.Catalog.HandleGet(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(rec)
				}
				displayRecord(rec)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}
