package dbpool

import (
	"fmt"
	"sync"
)

// RoutineKind distinguishes procedures (side effects) from functions (values).
type RoutineKind int

const (
	RoutineProcedure RoutineKind = iota
	RoutineFunction
)

func (k RoutineKind) String() string {
	if k == RoutineProcedure {
		return "procedure"
	}
	return "function"
}

// Routine is a named, reusable store operation.
type Routine struct {
	Name string
	Kind RoutineKind
	// SQL uses portable ? placeholders.
	SQL string
	// Dialect overrides SQL for a driver name ("sqlite", "postgres").
	Dialect map[string]string
	// Returns is true when the statement yields rows. Statements without
	// rows report a single row holding rows_affected.
	Returns bool
	// Idempotent routines may be retried after they reached the store.
	Idempotent bool
}

func (r Routine) statement(driver string) string {
	if sql, ok := r.Dialect[driver]; ok {
		return sql
	}
	return r.SQL
}

// registry holds the routines callable by name.
type registry struct {
	mu       sync.RWMutex
	routines map[string]Routine
}

func newRegistry() *registry {
	return &registry{routines: make(map[string]Routine)}
}

func (r *registry) register(routines ...Routine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range routines {
		if rt.Name == "" {
			return fmt.Errorf("routine name is required")
		}
		if rt.SQL == "" && len(rt.Dialect) == 0 {
			return fmt.Errorf("routine %q has no statement", rt.Name)
		}
		r.routines[rt.Name] = rt
	}
	return nil
}

func (r *registry) lookup(name string) (Routine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routines[name]
	return rt, ok
}
