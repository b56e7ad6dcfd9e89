package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/chronicle/internal/application/handlers"
	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/domain/services"
)

type proposeFlags struct {
	fields  []string
	payload string
	comment string
}

func newProposeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Change a catalog entry",
		Long: `Creates, updates or deletes a catalog entry. Moderators and admins change
the catalog directly (deletes need an admin); everyone else files a change
request that waits for review.`,
	}

	cmd.AddCommand(
		newProposeOpCmd(entities.OpCreate, "create <type>", cobra.ExactArgs(1)),
		newProposeOpCmd(entities.OpUpdate, "update <type> <id>", cobra.ExactArgs(2)),
		newProposeOpCmd(entities.OpDelete, "delete <type> <id>", cobra.ExactArgs(2)),
	)

	return cmd
}

func newProposeOpCmd(op entities.OperationType, use string, args cobra.PositionalArgs) *cobra.Command {
	var flags proposeFlags

	cmd := &cobra.Command{
		Use:   use,
		Short: strings.ToLower(string(op)) + " a " + strings.Join(entityTypeNames(), "|") + " entry",
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := handlers.ProposeRequest{
				EntityType: args[0],
				Operation:  string(op),
				Comment:    flags.comment,
			}
			if len(args) > 1 {
				req.EntityID = args[1]
			}
			if op != entities.OpDelete {
				fields, err := parseFields(flags.fields, flags.payload)
				if err != nil {
					return err
				}
				req.Fields = fields
			}
			return runPropose(cmd, req)
		},
	}

	if op != entities.OpDelete {
		cmd.Flags().StringArrayVarP(&flags.fields, "field", "f", nil, "Field as key=value (repeatable)")
		cmd.Flags().StringVar(&flags.payload, "json", "", "All fields as a JSON object")
		cmd.Flags().StringVarP(&flags.comment, "comment", "c", "", "Comment for the reviewer")
	} else {
		cmd.Flags().StringVarP(&flags.comment, "reason", "r", "", "Reason for the deletion")
	}

	return cmd
}

func runPropose(cmd *cobra.Command, req handlers.ProposeRequest) error {
	ctx := cmd.Context()

	return withActor(ctx, func(d *Deps, actor *entities.User) error {
		req.ActorID = actor.ID
		result, err := d.Catalog.HandlePropose(ctx, req)
		if err != nil {
			return err
		}
		displayMutation(result)
		return nil
	})
}

// parseFields merges a JSON object with key=value pairs; pairs win.
func parseFields(pairs []string, payload string) (map[string]any, error) {
	fields := make(map[string]any)
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &fields); err != nil {
			return nil, fmt.Errorf("parsing --json: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --field %q (want key=value)", pair)
		}
		fields[key] = value
	}
	return fields, nil
}

func displayMutation(result *services.MutationResult) {
	if result.Applied {
		if result.Record != nil {
			fmt.Printf("Applied: %s %s\n", result.Record.Type, result.EntityID)
			displayFields(result.Record.Fields)
		} else {
			fmt.Printf("Applied: deleted %s\n", result.EntityID)
		}
		return
	}
	fmt.Printf("Change request %s filed (%s), waiting for review\n", result.Request.ID, result.Request.Summary())
}

func entityTypeNames() []string {
	names := make([]string, 0, len(entities.EntityTypes))
	for _, t := range entities.EntityTypes {
		names = append(names, strings.ToLower(string(t)))
	}
	return names
}
