package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/chronicle/internal/application/handlers"
	"github.com/ersonp/chronicle/internal/domain/entities"
)

func newRequestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Inspect change requests",
	}

	cmd.AddCommand(
		newRequestsListCmd("list", "List the review queue (moderators)", false),
		newRequestsListCmd("mine", "List your own change requests", true),
		newRequestsShowCmd(),
	)

	return cmd
}

func newRequestsListCmd(use, short string, mine bool) *cobra.Command {
	var (
		opts   handlers.ListOptions
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts.Mine = mine
			return withActor(ctx, func(d *Deps, actor *entities.User) error {
				result, err := d.Moderation.HandleList(ctx, actor.ID, opts)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(result)
				}
				if len(result.Requests) == 0 {
					fmt.Println("No change requests found.")
					return nil
				}

				fmt.Printf("Showing %d of %d change requests:\n\n", len(result.Requests), result.Total)
				for i := range result.Requests {
					displayRequestLine(&result.Requests[i])
				}
				return nil
			})
		},
	}

	statusHelp := "Filter by status (PENDING, APPROVED, REJECTED)"
	if !mine {
		statusHelp += "; default PENDING"
	}
	cmd.Flags().StringVarP(&opts.EntityType, "type", "t", "", "Filter by entity type")
	cmd.Flags().StringVarP(&opts.Status, "status", "s", "", statusHelp)
	cmd.Flags().IntVarP(&opts.Limit, "limit", "l", DefaultListLimit, "Maximum number of requests to display")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of requests to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func newRequestsShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show one change request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withActor(ctx, func(d *Deps, actor *entities.User) error {
				cr, err := d.Moderation.HandleShow(ctx, actor.ID, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cr)
				}
				displayRequest(cr)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}
