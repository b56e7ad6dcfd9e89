// Package dbpool owns the process-wide pool of relational store sessions.
//
// A Manager is opened once at startup and injected into every store. It
// bounds concurrent sessions, evicts broken ones at checkout, carries the
// active session and transaction in the context so nested calls join it,
// classifies driver failures into domain errors and retries the transient
// ones.
package dbpool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/infrastructure/config"
)

// openDB opens the database/sql pool (replaced in tests).
var openDB = sql.Open

// pingSession verifies a checked-out session (replaced in tests).
var pingSession = func(ctx context.Context, conn *sql.Conn) error {
	return conn.PingContext(ctx)
}

// Row is one result row keyed by column name.
type Row map[string]any

// Manager is the connection manager shared by all stores.
type Manager struct {
	db       *sql.DB
	dialect  dialect
	cfg      config.DatabaseConfig
	policy   RetryPolicy
	routines *registry
	closed   atomic.Bool
}

// Open builds the pool, opens the minimum number of sessions and probes the
// store. A failed attempt is retried with exponential backoff up to
// cfg.InitAttempts times before Open gives up.
func Open(ctx context.Context, cfg config.DatabaseConfig, retry config.RetryConfig) (*Manager, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, &domainErr.DatabaseError{Op: "open", Stage: domainErr.StageInit, Err: err}
	}
	dsn, err := d.dsn(cfg)
	if err != nil {
		return nil, &domainErr.DatabaseError{Op: "open", Stage: domainErr.StageInit, Err: err}
	}
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 1
	}
	cfg.MinSessions = min(max(cfg.MinSessions, 0), cfg.MaxSessions)
	if cfg.CheckoutTimeout <= 0 {
		cfg.CheckoutTimeout = 5 * time.Second
	}

	attempts := max(cfg.InitAttempts, 1)
	backoff := cfg.InitBackoff
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		db, err := connect(ctx, d, dsn, cfg)
		if err == nil {
			log.WithFields(log.Fields{
				"driver":       d.name(),
				"min_sessions": cfg.MinSessions,
				"max_sessions": cfg.MaxSessions,
				"attempt":      attempt,
			}).Info("database pool ready")

			return &Manager{
				db:       db,
				dialect:  d,
				cfg:      cfg,
				policy:   PolicyFrom(retry),
				routines: newRegistry(),
			}, nil
		}

		lastErr = err
		if attempt == attempts {
			break
		}

		log.WithFields(log.Fields{
			"driver":  d.name(),
			"attempt": attempt,
			"backoff": backoff,
		}).WithError(err).Warn("database not reachable, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &domainErr.DatabaseError{Op: "open", Stage: domainErr.StageInit, Err: ctx.Err()}
		case <-timer.C:
		}
		backoff = nextBackoff(backoff, 2, 30*time.Second)
	}

	return nil, &domainErr.DatabaseError{
		Op:    "open",
		Stage: domainErr.StageInit,
		Err:   errors.Wrapf(lastErr, "giving up after %d attempts", attempts),
	}
}

// connect opens a pool and warms MinSessions sessions.
func connect(ctx context.Context, d dialect, dsn string, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := openDB(d.driverName(), dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening pool")
	}
	db.SetMaxOpenConns(cfg.MaxSessions)
	db.SetMaxIdleConns(cfg.MaxSessions)

	warm := make([]*sql.Conn, 0, cfg.MinSessions)
	release := func() {
		for _, c := range warm {
			_ = c.Close()
		}
	}

	for i := 0; i < cfg.MinSessions; i++ {
		conn, err := db.Conn(ctx)
		if err == nil {
			err = conn.PingContext(ctx)
			warm = append(warm, conn)
		}
		if err != nil {
			release()
			_ = db.Close()
			return nil, errors.Wrap(err, "opening session")
		}
	}
	release()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "probing store")
	}
	return db, nil
}

// Close releases every session. Later calls fail fast with ErrPoolClosed.
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	log.Info("closing database pool")
	return m.db.Close()
}

// Driver returns the configured driver name.
func (m *Manager) Driver() string {
	return m.dialect.name()
}

// Register adds named routines callable through CallProcedure and CallFunction.
func (m *Manager) Register(routines ...Routine) error {
	return m.routines.register(routines...)
}

// WithConnection checks out a session, runs fn and returns the session to
// the pool. A transaction left open by fn is committed when fn succeeds and
// rolled back when it fails or panics. A session already carried by ctx is
// reused.
func (m *Manager) WithConnection(ctx context.Context, fn func(ctx context.Context, s *Session) error) (err error) {
	if s := sessionFrom(ctx); s != nil {
		return fn(ctx, s)
	}

	s, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	ctx = context.WithValue(ctx, sessionKey{}, s)

	defer func() {
		if p := recover(); p != nil {
			s.rollback()
			s.release()
			panic(p)
		}
		if s.tx != nil {
			if err != nil {
				s.rollback()
			} else {
				err = s.commit(ctx)
			}
		}
		s.release()
	}()

	return fn(ctx, s)
}

// WithTransaction runs fn in a transaction: commit on success, rollback on
// error or panic. Calls made with the ctx given to fn, including nested
// WithTransaction calls, join the same transaction.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.WithConnection(ctx, func(ctx context.Context, s *Session) error {
		if s.tx != nil {
			return fn(ctx)
		}
		return s.runTx(ctx, fn)
	})
}

func (m *Manager) acquire(ctx context.Context) (*Session, error) {
	if m.closed.Load() {
		return nil, &domainErr.DatabaseError{Op: "checkout", Stage: domainErr.StageAcquire, Err: domainErr.ErrPoolClosed}
	}

	cctx, cancel := context.WithTimeout(ctx, m.cfg.CheckoutTimeout)
	defer cancel()

	start := time.Now()
	conn, err := m.checkout(cctx)
	checkoutWait.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, m.acquireError(ctx, err)
	}

	m.observePool()
	return &Session{m: m, conn: conn}, nil
}

// checkout takes a session from the pool and verifies it. A broken session
// is evicted and one replacement is tried.
func (m *Manager) checkout(ctx context.Context) (*sql.Conn, error) {
	var lastErr error
	for try := 0; try < 2; try++ {
		conn, err := m.db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		if err := m.prepare(ctx, conn); err != nil {
			m.evict(conn)
			if ctx.Err() != nil {
				return nil, err
			}
			log.WithError(err).Warn("evicted broken database session")
			lastErr = err
			continue
		}
		return conn, nil
	}
	return nil, lastErr
}

func (m *Manager) prepare(ctx context.Context, conn *sql.Conn) error {
	if err := pingSession(ctx, conn); err != nil {
		return errors.Wrap(err, "pinging session")
	}
	for _, stmt := range m.dialect.sessionSetup(m.cfg) {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "applying %q", stmt)
		}
	}
	return nil
}

// evict discards conn instead of returning it to the pool.
func (m *Manager) evict(conn *sql.Conn) {
	evictions.Inc()
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}

func (m *Manager) acquireError(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return &domainErr.DatabaseError{Op: "checkout", Stage: domainErr.StageAcquire, Err: ctx.Err()}
	case errors.Is(err, context.DeadlineExceeded):
		operationErrors.WithLabelValues("checkout", "retryable").Inc()
		return &domainErr.DatabaseError{
			Op:        "checkout",
			Stage:     domainErr.StageAcquire,
			Retryable: true,
			Err:       errors.Wrapf(domainErr.ErrPoolExhausted, "waited %s", m.cfg.CheckoutTimeout),
		}
	case m.closed.Load():
		return &domainErr.DatabaseError{Op: "checkout", Stage: domainErr.StageAcquire, Err: domainErr.ErrPoolClosed}
	}
	return m.classify(ctx, "checkout", domainErr.StageAcquire, err)
}

func (m *Manager) observePool() {
	stats := m.db.Stats()
	poolSessions.WithLabelValues("open").Set(float64(stats.OpenConnections))
	poolSessions.WithLabelValues("in_use").Set(float64(stats.InUse))
	poolSessions.WithLabelValues("idle").Set(float64(stats.Idle))
}

// classify converts a driver failure into a domain error. Errors that are
// already domain errors pass through.
func (m *Manager) classify(ctx context.Context, op string, stage domainErr.Stage, err error) error {
	if err == nil || isDomainError(err) {
		return err
	}

	kind := m.dialect.classify(err)
	if kind == failureDuplicate {
		operationErrors.WithLabelValues(op, "duplicate").Inc()
		return &domainErr.DuplicateEntityError{Kind: "record", Detail: err.Error(), Err: err}
	}

	retryable := false
	switch {
	case ctx.Err() != nil:
		// The caller gave up; repeating cannot help.
	case kind == failureTransient, kind == failureConnection:
		retryable = true
	case isConnectionError(err):
		retryable = true
	case errors.Is(err, context.DeadlineExceeded):
		// statement timeout
		retryable = true
	}

	label := "permanent"
	if retryable {
		label = "retryable"
	}
	operationErrors.WithLabelValues(op, label).Inc()

	return &domainErr.DatabaseError{Op: op, Stage: stage, Retryable: retryable, Err: err}
}

func isDomainError(err error) bool {
	return errors.Is(err, domainErr.ErrDatabase) ||
		errors.Is(err, domainErr.ErrDuplicate) ||
		errors.Is(err, domainErr.ErrValidation) ||
		errors.Is(err, domainErr.ErrNotFound) ||
		errors.Is(err, domainErr.ErrAuthorization) ||
		errors.Is(err, domainErr.ErrPartialApproval)
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
