package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/services"
)

func newStatsCmd() *cobra.Command {
	var (
		days   int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show review statistics (moderators)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withActor(ctx, func(d *Deps, actor *entities.User) error {
				stats, err := d.Moderation.HandleStats(ctx, actor.ID, days)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(stats)
				}
				return displayStats(stats)
			})
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", DefaultStatsDays, "Period in days")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func displayStats(stats *services.Statistics) error {
	fmt.Printf("Change requests since %s (%d days)\n\n", stats.Since.Format("2006-01-02"), stats.PeriodDays)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, st := range []entities.Status{entities.StatusPending, entities.StatusApproved, entities.StatusRejected} {
		fmt.Fprintf(w, "%s\t%d\n", st, stats.ByStatus[st])
	}
	fmt.Fprintln(w, "\t")
	for _, t := range entities.EntityTypes {
		fmt.Fprintf(w, "%s\t%d\n", t, stats.ByEntityType[t])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nPending overall:     %d\n", stats.PendingTotal)
	fmt.Printf("Average review time: %s\n", stats.AverageReviewTime.Round(time.Second))
	if stats.PurgeableCount != nil {
		fmt.Printf("Purgeable now:       %d\n", *stats.PurgeableCount)
	}
	return nil
}

func newPurgeCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete reviewed change requests older than --days (admins)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withActor(ctx, func(d *Deps, actor *entities.User) error {
				result, err := d.Moderation.HandlePurge(ctx, actor.ID, days)
				if err != nil {
					return err
				}
				fmt.Printf("Purged %d change requests reviewed before %s\n", result.Deleted, result.Cutoff.Format(time.RFC3339))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 90, "Minimum age in days")

	return cmd
}
