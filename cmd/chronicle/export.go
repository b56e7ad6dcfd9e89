package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ersonp/chronicle/internal/application/handlers"
	"github.com/ersonp/chronicle/internal/domain/entities"
)

type exportFlags struct {
	format string
	output string
	query  handlers.AuditQuery
}

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the audit trail (admins)",
	}

	cmd.AddCommand(newAuditExportCmd())

	return cmd
}

func newAuditExportCmd() *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export audit records to file",
		Long:  "Exports audit records, newest first, to JSON, CSV, or markdown format.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "json", "Output format (json, csv, markdown)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&flags.query.UserID, "user-id", "", "Filter by acting user id")
	cmd.Flags().StringVar(&flags.query.ActionType, "action", "", "Filter by action, e.g. PERSON_APPROVED")
	cmd.Flags().StringVarP(&flags.query.EntityType, "type", "t", "", "Filter by entity type")
	cmd.Flags().StringVar(&flags.query.EntityID, "entity-id", "", "Filter by entity id")
	cmd.Flags().IntVarP(&flags.query.SinceDays, "days", "d", 0, "Only records from the last N days")
	cmd.Flags().IntVarP(&flags.query.Limit, "limit", "l", DefaultExportLimit, "Maximum number of records to export")

	return cmd
}

func runExport(cmd *cobra.Command, flags exportFlags) error {
	if !slices.Contains(validFormats, flags.format) {
		return fmt.Errorf("invalid format %q, valid formats: %v", flags.format, validFormats)
	}
	flags.query.EntityType = strings.ToUpper(flags.query.EntityType)
	flags.query.ActionType = strings.ToUpper(flags.query.ActionType)

	ctx := cmd.Context()

	return withActor(ctx, func(d *Deps, actor *entities.User) error {
		records, err := d.Audit.HandleHistory(ctx, actor.ID, flags.query)
		if err != nil {
			return fmt.Errorf("listing audit records: %w", err)
		}
		if len(records) == 0 {
			return fmt.Errorf("no audit records found to export")
		}
		return export(records, flags.format, flags.output)
	})
}

func export(records []entities.AuditRecord, format, output string) (err error) {
	var w io.Writer
	var f *os.File

	if output != "" {
		f, err = os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("creating file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing file: %w", cerr)
			}
		}()
		w = f
	} else {
		w = os.Stdout
	}

	if err := formatRecords(w, format, records); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	if output != "" {
		fmt.Printf("Exported %d audit records to %s\n", len(records), output)
	}

	return nil
}

func formatRecords(w io.Writer, format string, records []entities.AuditRecord) error {
	switch format {
	case "json":
		return formatJSON(w, records)
	case "csv":
		return formatCSV(w, records)
	case "markdown":
		return formatMarkdown(w, records)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func formatJSON(w io.Writer, records []entities.AuditRecord) error {
	if records == nil {
		records = []entities.AuditRecord{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}

func formatCSV(w io.Writer, records []entities.AuditRecord) error {
	writer := csv.NewWriter(w)

	header := []string{"id", "created_at", "user_id", "action_type", "entity_type", "entity_id", "description", "old_value", "new_value"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		oldValue, err := compactJSON(r.OldValue)
		if err != nil {
			return err
		}
		newValue, err := compactJSON(r.NewValue)
		if err != nil {
			return err
		}
		row := []string{
			fmt.Sprintf("%d", r.ID),
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.UserID,
			r.ActionType,
			r.EntityType,
			r.EntityID,
			r.Description,
			oldValue,
			newValue,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func compactJSON(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func formatMarkdown(w io.Writer, records []entities.AuditRecord) error {
	if _, err := fmt.Fprintf(w, "# Audit Trail\n\nTotal: %d records\n\n", len(records)); err != nil {
		return err
	}

	if _, err := fmt.Fprint(w, "| Time | User | Action | Entity | Description |\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "|------|------|--------|--------|-------------|\n"); err != nil {
		return err
	}

	for _, r := range records {
		user := r.UserID
		if user == "" {
			user = "system"
		}
		entity := r.EntityType
		if r.EntityID != "" {
			entity += " " + r.EntityID
		}
		if _, err := fmt.Fprintf(w, "| %s | %s | %s | %s | %s |\n",
			r.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			escapeMarkdown(user),
			r.ActionType,
			escapeMarkdown(entity),
			escapeMarkdown(r.Description),
		); err != nil {
			return err
		}
	}

	return nil
}

func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
