package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
)

// CatalogRecord is a stored catalog entity. Fields holds the kind's columns
// keyed by payload name.
type CatalogRecord struct {
	ID        string         `json:"id"`
	Type      EntityType     `json:"entity_type"`
	Fields    map[string]any `json:"fields"`
	CreatedBy string         `json:"created_by,omitempty"`
	UpdatedBy string         `json:"updated_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Label returns the record's display name.
func (r *CatalogRecord) Label() string {
	kind, ok := CatalogKinds[r.Type]
	if !ok {
		return r.ID
	}
	if s, ok := r.Fields[kind.LabelField].(string); ok && s != "" {
		return s
	}
	return r.ID
}

// Snapshot returns a copy of the fields plus the id, used for audit values.
func (r *CatalogRecord) Snapshot() map[string]any {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	return out
}

// Person is a historical person.
type Person struct {
	Name      string `json:"name" validate:"required,max=255"`
	BirthDate string `json:"birth_date,omitempty" validate:"omitempty,histdate"`
	DeathDate string `json:"death_date,omitempty" validate:"omitempty,histdate"`
	Biography string `json:"biography,omitempty" validate:"max=10000"`
	CountryID string `json:"country_id,omitempty" validate:"omitempty,uuid"`
}

func (p *Person) check() error {
	return checkOrder("death_date", p.BirthDate, p.DeathDate)
}

// Country is a state or polity.
type Country struct {
	Name          string `json:"name" validate:"required,max=255"`
	Capital       string `json:"capital,omitempty" validate:"max=255"`
	FoundedDate   string `json:"founded_date,omitempty" validate:"omitempty,histdate"`
	DissolvedDate string `json:"dissolved_date,omitempty" validate:"omitempty,histdate"`
	Description   string `json:"description,omitempty" validate:"max=10000"`
}

func (c *Country) check() error {
	return checkOrder("dissolved_date", c.FoundedDate, c.DissolvedDate)
}

// Event is a dated historical occurrence.
type Event struct {
	Title       string `json:"title" validate:"required,max=255"`
	StartDate   string `json:"start_date,omitempty" validate:"omitempty,histdate"`
	EndDate     string `json:"end_date,omitempty" validate:"omitempty,histdate"`
	Location    string `json:"location,omitempty" validate:"max=255"`
	Description string `json:"description,omitempty" validate:"max=10000"`
}

func (e *Event) check() error {
	return checkOrder("end_date", e.StartDate, e.EndDate)
}

// Document is a primary historical document.
type Document struct {
	Title        string `json:"title" validate:"required,max=255"`
	DocumentType string `json:"document_type,omitempty" validate:"max=64"`
	CreatedDate  string `json:"created_date,omitempty" validate:"omitempty,histdate"`
	Author       string `json:"author,omitempty" validate:"max=255"`
	Content      string `json:"content,omitempty" validate:"max=100000"`
	EventID      string `json:"event_id,omitempty" validate:"omitempty,uuid"`
}

func (d *Document) check() error { return nil }

// Source is a bibliographic reference.
type Source struct {
	Title           string `json:"title" validate:"required,max=255"`
	Author          string `json:"author,omitempty" validate:"max=255"`
	PublicationDate string `json:"publication_date,omitempty" validate:"omitempty,histdate"`
	URL             string `json:"url,omitempty" validate:"omitempty,url,max=2048"`
	SourceType      string `json:"source_type,omitempty" validate:"max=64"`
}

func (s *Source) check() error { return nil }

// catalogRecord is implemented by the typed records above.
type catalogRecord interface {
	check() error
}

// CatalogKind describes how one entity type is stored and validated.
type CatalogKind struct {
	Type        EntityType
	Table       string
	Description string
	// Fields lists payload keys in column order.
	Fields     []string
	DateFields []string
	LabelField string
	newRecord  func() catalogRecord
}

// CatalogKinds is the dispatch table for every entity type.
var CatalogKinds = map[EntityType]CatalogKind{
	EntityPerson: {
		Type:        EntityPerson,
		Table:       "persons",
		Description: "Historical persons",
		Fields:      []string{"name", "birth_date", "death_date", "biography", "country_id"},
		DateFields:  []string{"birth_date", "death_date"},
		LabelField:  "name",
		newRecord:   func() catalogRecord { return &Person{} },
	},
	EntityCountry: {
		Type:        EntityCountry,
		Table:       "countries",
		Description: "States and polities",
		Fields:      []string{"name", "capital", "founded_date", "dissolved_date", "description"},
		DateFields:  []string{"founded_date", "dissolved_date"},
		LabelField:  "name",
		newRecord:   func() catalogRecord { return &Country{} },
	},
	EntityEvent: {
		Type:        EntityEvent,
		Table:       "events",
		Description: "Dated historical occurrences",
		Fields:      []string{"title", "start_date", "end_date", "location", "description"},
		DateFields:  []string{"start_date", "end_date"},
		LabelField:  "title",
		newRecord:   func() catalogRecord { return &Event{} },
	},
	EntityDocument: {
		Type:        EntityDocument,
		Table:       "documents",
		Description: "Primary documents",
		Fields:      []string{"title", "document_type", "created_date", "author", "content", "event_id"},
		DateFields:  []string{"created_date"},
		LabelField:  "title",
		newRecord:   func() catalogRecord { return &Document{} },
	},
	EntitySource: {
		Type:        EntitySource,
		Table:       "sources",
		Description: "Bibliographic sources",
		Fields:      []string{"title", "author", "publication_date", "url", "source_type"},
		DateFields:  []string{"publication_date"},
		LabelField:  "title",
		newRecord:   func() catalogRecord { return &Source{} },
	},
}

// KindOf returns the catalog kind for t.
func KindOf(t EntityType) (CatalogKind, error) {
	kind, ok := CatalogKinds[t]
	if !ok {
		return CatalogKind{}, domainErr.NewValidationError("entity_type", "unsupported entity type %q", t)
	}
	return kind, nil
}

// NormalizePayload normalizes date fields, rejects unknown keys, validates the
// typed record and returns the canonical field map.
func NormalizePayload(t EntityType, payload map[string]any) (map[string]any, error) {
	kind, err := KindOf(t)
	if err != nil {
		return nil, err
	}

	normalized := make(map[string]any, len(payload))
	for k, v := range payload {
		normalized[k] = v
	}
	for _, field := range kind.DateFields {
		raw, ok := normalized[field]
		if !ok || raw == nil {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return nil, domainErr.NewValidationError(field, "must be a string date")
		}
		date, err := NormalizeDate(s)
		if err != nil {
			return nil, domainErr.NewValidationError(field, "%v", err)
		}
		normalized[field] = date
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, domainErr.NewValidationError("payload", "not serializable: %v", err)
	}

	rec := kind.newRecord()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(rec); err != nil {
		return nil, domainErr.NewValidationError("payload", "%v", err)
	}

	if err := validateStruct(rec); err != nil {
		return nil, err
	}
	if err := rec.check(); err != nil {
		return nil, err
	}

	return recordFields(rec)
}

// Describe returns a short natural-language summary of a record, used for
// similarity indexing and listings.
func Describe(t EntityType, fields map[string]any) string {
	kind, ok := CatalogKinds[t]
	if !ok {
		return string(t)
	}

	var b strings.Builder
	b.WriteString(string(t))
	b.WriteString(": ")
	if label, ok := fields[kind.LabelField].(string); ok {
		b.WriteString(label)
	}
	for _, field := range kind.Fields {
		if field == kind.LabelField {
			continue
		}
		if s, ok := fields[field].(string); ok && s != "" {
			fmt.Fprintf(&b, "; %s: %s", field, s)
		}
	}
	return b.String()
}

func recordFields(rec catalogRecord) (map[string]any, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return fields, nil
}

// checkOrder rejects an end date earlier than its start date. Canonical
// dates compare correctly as strings.
func checkOrder(endField, start, end string) error {
	if start == "" || end == "" {
		return nil
	}
	if end < start {
		return domainErr.NewValidationError(endField, "must not be earlier than %s", start)
	}
	return nil
}
