package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/chronicle/internal/domain/entities"
	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
)

func newApproveCmd() *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "approve <request-id>",
		Short: "Approve a change request and apply it (moderators)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withActor(ctx, func(d *Deps, actor *entities.User) error {
				result, err := d.Moderation.HandleApprove(ctx, actor.ID, args[0], comment)
				if err != nil {
					if errors.Is(err, domainErr.ErrPartialApproval) && result != nil {
						fmt.Printf("Request %s is %s\n", result.Request.ID, result.Request.Status)
					}
					return err
				}

				fmt.Printf("Approved %s (%s)\n", result.Request.ID, result.Request.Summary())
				if result.EntityID != "" && result.Request.Operation == entities.OpCreate {
					fmt.Printf("New %s: %s\n", result.Request.EntityType, result.EntityID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&comment, "comment", "c", "", "Review comment")

	return cmd
}

func newRejectCmd() *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "reject <request-id>",
		Short: "Reject a change request with a comment (moderators)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withActor(ctx, func(d *Deps, actor *entities.User) error {
				cr, err := d.Moderation.HandleReject(ctx, actor.ID, args[0], comment)
				if err != nil {
					return err
				}
				fmt.Printf("Rejected %s (%s)\n", cr.ID, cr.Summary())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&comment, "comment", "c", "", "Reason for the rejection (required)")
	_ = cmd.MarkFlagRequired("comment")

	return cmd
}

func newSimilarCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "similar <request-id>",
		Short: "List catalog entries resembling a request (moderators)",
		Long:  "Searches the similarity index for likely duplicates. Requires qdrant.enabled and an embedder API key.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withActor(ctx, func(d *Deps, actor *entities.User) error {
				hits, err := d.Moderation.HandleSimilar(ctx, actor.ID, args[0], limit)
				if err != nil {
					return err
				}
				if len(hits) == 0 {
					fmt.Println("No similar entries found.")
					return nil
				}

				for i, hit := range hits {
					fmt.Printf("%d. [%.2f] %s %s\n", i+1, hit.Score, hit.EntityType, hit.ID)
					if hit.Summary != "" {
						fmt.Printf("   %s\n", hit.Summary)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultSimilarLimit, "Maximum number of matches")

	return cmd
}
