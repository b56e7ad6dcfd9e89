// Package relationaldb implements the store ports on top of the pooled
// connection manager. The same statements serve SQLite and PostgreSQL.
package relationaldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ersonp/chronicle/internal/infrastructure/dbpool"
)

// generateUUID returns a new UUID string.
func generateUUID() string {
	return uuid.New().String()
}

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// timeLayout is fixed-width so stored timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Repository implements the change request, audit, user and catalog stores.
type Repository struct {
	pool *dbpool.Manager
}

// NewRepository registers the store routines on pool.
func NewRepository(pool *dbpool.Manager) (*Repository, error) {
	if pool == nil {
		return nil, errors.New("connection manager is required")
	}
	if err := pool.Register(routines()...); err != nil {
		return nil, fmt.Errorf("registering routines: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// WithTransaction runs fn in one transaction; store calls made with the ctx
// passed to fn join it.
func (r *Repository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.pool.WithTransaction(ctx, fn)
}

// EnsureSchema creates the tables and indexes if they don't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	err := r.pool.WithTransaction(ctx, func(ctx context.Context) error {
		for _, stmt := range schemaStatements(r.pool.Driver()) {
			if _, err := r.pool.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// asTime parses a stored timestamp. NULL yields the zero time.
func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case string:
		if parsed, err := time.Parse(timeLayout, t); err == nil {
			return parsed, nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", t, err)
		}
		return parsed.UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

// nullable maps the empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func encodeJSON(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding json: %w", err)
	}
	return string(data), nil
}

func decodeJSON(v any) (map[string]any, error) {
	s := asString(v)
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decoding json: %w", err)
	}
	return m, nil
}

// clampLimit applies the default page size and an upper bound.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	}
	return limit
}
