package dbpool

import (
	"context"
	"fmt"

	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
)

// CallProcedure invokes a registered procedure, or a store-native one when
// the driver supports them. Procedures are not retried after they reached
// the store unless registered as idempotent.
func (m *Manager) CallProcedure(ctx context.Context, name string, args ...any) ([]Row, error) {
	return m.call(ctx, RoutineProcedure, name, args)
}

// CallFunction invokes a registered or store-native function and returns
// its rows.
func (m *Manager) CallFunction(ctx context.Context, name string, args ...any) ([]Row, error) {
	return m.call(ctx, RoutineFunction, name, args)
}

// Query runs a read statement with retry. Reads are idempotent.
func (m *Manager) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	return ExecuteWithRetry(ctx, m.policy, Operation{Name: "query", Idempotent: true}, func(ctx context.Context) ([]Row, error) {
		var rows []Row
		err := m.WithConnection(ctx, func(ctx context.Context, s *Session) error {
			var err error
			rows, err = s.Query(ctx, query, args...)
			return err
		})
		return rows, err
	})
}

// QueryRow is Query returning the first row, or nil when there is none.
func (m *Manager) QueryRow(ctx context.Context, query string, args ...any) (Row, error) {
	rows, err := m.Query(ctx, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Exec runs a write statement in a transaction and returns the affected row
// count. It is retried only when the session could not be acquired.
func (m *Manager) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return ExecuteWithRetry(ctx, m.policy, Operation{Name: "exec"}, func(ctx context.Context) (int64, error) {
		var n int64
		err := m.WithTransaction(ctx, func(ctx context.Context) error {
			var err error
			n, err = sessionFrom(ctx).Exec(ctx, query, args...)
			return err
		})
		return n, err
	})
}

func (m *Manager) call(ctx context.Context, kind RoutineKind, name string, args []any) ([]Row, error) {
	rt, ok := m.routines.lookup(name)
	if !ok {
		stmt, native := m.dialect.nativeCall(kind, name, len(args))
		if !native {
			return nil, &domainErr.DatabaseError{Op: name, Stage: domainErr.StageExecute, Err: fmt.Errorf("unknown %s %q", kind, name)}
		}
		rt = Routine{Name: name, Kind: kind, SQL: stmt, Returns: kind == RoutineFunction}
	}
	if rt.Kind != kind {
		return nil, &domainErr.DatabaseError{Op: name, Stage: domainErr.StageExecute, Err: fmt.Errorf("%q is a %s", name, rt.Kind)}
	}

	stmt := rt.statement(m.dialect.name())
	op := Operation{Name: rt.Name, Idempotent: rt.Idempotent}

	return ExecuteWithRetry(ctx, m.policy, op, func(ctx context.Context) ([]Row, error) {
		var rows []Row
		err := m.WithTransaction(ctx, func(ctx context.Context) error {
			s := sessionFrom(ctx)
			if rt.Returns {
				var err error
				rows, err = s.Query(ctx, stmt, args...)
				return err
			}
			n, err := s.Exec(ctx, stmt, args...)
			rows = []Row{{"rows_affected": n}}
			return err
		})
		return rows, err
	})
}
