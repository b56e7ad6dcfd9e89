package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ersonp/chronicle/internal/domain/entities"
)

func newReindexCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the similarity index from the catalog (admins)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withInternalDeps(ctx, func(d *internalDeps) error {
				if d.similarity == nil {
					return errors.New("similarity index is disabled (set qdrant.enabled and an embedder API key)")
				}
				actor, err := d.actor(ctx)
				if err != nil {
					return err
				}
				if err := d.gate.RequirePermission(ctx, actor.ID, entities.RoleAdmin); err != nil {
					return err
				}

				if reset {
					if err := d.index.DeleteCollection(ctx); err != nil {
						return fmt.Errorf("dropping collection: %w", err)
					}
				}
				if err := d.index.EnsureCollection(ctx, d.embedder.Dimensions()); err != nil {
					return fmt.Errorf("creating collection: %w", err)
				}

				n, err := d.similarity.Reindex(ctx, d.repo)
				if err != nil {
					return err
				}
				fmt.Printf("Indexed %d catalog entries into %s\n", n, d.Config.Qdrant.CollectionName())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Drop the collection first")

	return cmd
}
