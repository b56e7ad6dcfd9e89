package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/ersonp/chronicle/internal/domain/entities"
)

func displayFields(fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := fields[k]; v != nil && v != "" {
			fmt.Printf("  %s: %v\n", k, v)
		}
	}
}

func displayRecord(rec *entities.CatalogRecord) {
	fmt.Printf("ID: %s\n", rec.ID)
	fmt.Printf("  [%s] %s\n", rec.Type, rec.Label())
	displayFields(rec.Fields)
	fmt.Printf("  updated: %s\n", rec.UpdatedAt.Format(time.RFC3339))
	fmt.Println()
}

func displayRequestLine(cr *entities.ChangeRequest) {
	fmt.Printf("%s  %-8s %-6s %-8s %s  %s\n",
		cr.ID, cr.Status, cr.Operation, cr.EntityType, cr.CreatedAt.Format("2006-01-02 15:04"), describeRequest(cr))
}

func displayRequest(cr *entities.ChangeRequest) {
	fmt.Printf("Request:   %s\n", cr.ID)
	fmt.Printf("Change:    %s\n", cr.Summary())
	fmt.Printf("Status:    %s\n", cr.Status)
	fmt.Printf("Requester: %s\n", cr.RequesterID)
	fmt.Printf("Created:   %s\n", cr.CreatedAt.Format(time.RFC3339))
	if cr.RequestComment != "" {
		fmt.Printf("Comment:   %s\n", cr.RequestComment)
	}
	if len(cr.Payload) > 0 {
		fmt.Println("Payload:")
		displayFields(cr.Payload)
	}
	if len(cr.PriorSnapshot) > 0 {
		fmt.Println("Current:")
		displayFields(cr.PriorSnapshot)
	}
	if cr.ReviewedAt != nil {
		fmt.Printf("Reviewed:  %s by %s\n", cr.ReviewedAt.Format(time.RFC3339), cr.ReviewerID)
		if cr.ReviewComment != "" {
			fmt.Printf("Review:    %s\n", cr.ReviewComment)
		}
	}
}

// describeRequest labels a request by its payload, or by the record it
// touches when the payload has no label.
func describeRequest(cr *entities.ChangeRequest) string {
	fields := cr.Payload
	if cr.Operation == entities.OpDelete {
		fields = cr.PriorSnapshot
	}
	rec := entities.CatalogRecord{ID: cr.EntityID, Type: cr.EntityType, Fields: fields}
	return rec.Label()
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
