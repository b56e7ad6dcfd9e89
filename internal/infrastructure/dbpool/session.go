package dbpool

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
)

type sessionKey struct{}

// sessionFrom returns the session carried by ctx, if any.
func sessionFrom(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// inTransaction reports whether ctx carries an open transaction.
func inTransaction(ctx context.Context) bool {
	s := sessionFrom(ctx)
	return s != nil && s.tx != nil
}

// Session is one checked-out store session. It is not safe for concurrent
// use; share it only along a single call chain.
type Session struct {
	m    *Manager
	conn *sql.Conn
	tx   *sql.Tx
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Session) querier() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

// InTransaction reports whether the session has an open transaction.
func (s *Session) InTransaction() bool {
	return s.tx != nil
}

// Exec runs a statement and returns the number of affected rows.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	sctx, cancel := s.statementContext(ctx)
	defer cancel()

	res, err := s.querier().ExecContext(sctx, s.m.dialect.rebind(query), args...)
	if err != nil {
		return 0, s.m.classify(ctx, "exec", domainErr.StageExecute, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, s.m.classify(ctx, "exec", domainErr.StageExecute, err)
	}
	return n, nil
}

// Query runs a statement and reads every row.
func (s *Session) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	sctx, cancel := s.statementContext(ctx)
	defer cancel()

	rows, err := s.querier().QueryContext(sctx, s.m.dialect.rebind(query), args...)
	if err != nil {
		return nil, s.m.classify(ctx, "query", domainErr.StageExecute, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, s.m.classify(ctx, "query", domainErr.StageExecute, err)
	}
	return out, nil
}

// QueryRow returns the first row, or nil when there is none.
func (s *Session) QueryRow(ctx context.Context, query string, args ...any) (Row, error) {
	rows, err := s.Query(ctx, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// statementContext bounds a single statement by the configured timeout.
func (s *Session) statementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.m.cfg.StatementTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.m.cfg.StatementTimeout)
}

func (s *Session) runTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := s.conn.BeginTx(ctx, s.m.dialect.txOptions())
	if err != nil {
		// Nothing ran yet, so the failure counts as part of acquiring.
		return s.m.classify(ctx, "begin", domainErr.StageAcquire, err)
	}
	s.tx = tx

	defer func() {
		if p := recover(); p != nil {
			s.rollback()
			panic(p)
		}
		if err != nil {
			s.rollback()
			return
		}
		err = s.commit(ctx)
	}()

	return fn(ctx)
}

func (s *Session) commit(ctx context.Context) error {
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return s.m.classify(ctx, "commit", domainErr.StageExecute, errors.Wrap(err, "committing transaction"))
	}
	return nil
}

func (s *Session) rollback() {
	if s.tx == nil {
		return
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.WithError(err).Warn("rolling back transaction")
	}
}

func (s *Session) release() {
	if err := s.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		log.WithError(err).Debug("releasing database session")
	}
	s.m.observePool()
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
