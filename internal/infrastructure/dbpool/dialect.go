package dbpool

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ersonp/chronicle/internal/infrastructure/config"
)

// failureKind is a driver-independent classification of a store error.
type failureKind int

const (
	failureUnknown failureKind = iota
	// failureTransient: busy, locked, serialization, deadlock, timeouts.
	failureTransient
	// failureConnection: the session or server went away.
	failureConnection
	// failureDuplicate: a unique or primary key constraint fired.
	failureDuplicate
)

// dialect hides the differences between the supported drivers.
type dialect interface {
	// name is the config driver name.
	name() string
	// driverName is the database/sql driver registration name.
	driverName() string
	dsn(cfg config.DatabaseConfig) (string, error)
	// rebind rewrites portable ? placeholders.
	rebind(query string) string
	// sessionSetup returns statements run on every checkout.
	sessionSetup(cfg config.DatabaseConfig) []string
	txOptions() *sql.TxOptions
	versionQuery() string
	classify(err error) failureKind
	// nativeCall returns the statement invoking a routine the registry does
	// not know, or false when the store has no native routines.
	nativeCall(kind RoutineKind, name string, argc int) (string, bool)
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case config.DriverSQLite, "":
		return sqliteDialect{}, nil
	case config.DriverPostgres:
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// sqliteDialect targets modernc.org/sqlite.
type sqliteDialect struct{}

func (sqliteDialect) name() string       { return config.DriverSQLite }
func (sqliteDialect) driverName() string { return "sqlite" }

// dsn builds a file URI with per-connection pragmas, so every pooled session
// gets the same settings. Transactions begin IMMEDIATE to take the write lock
// up front instead of failing on upgrade.
func (sqliteDialect) dsn(cfg config.DatabaseConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.Path == "" {
		return "", errors.New("sqlite path is required")
	}

	busy := cfg.LockTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=journal_mode(WAL)",
		"_pragma=busy_timeout(" + strconv.FormatInt(busy.Milliseconds(), 10) + ")",
		"_txlock=immediate",
	}
	return "file:" + cfg.Path + "?" + strings.Join(params, "&"), nil
}

func (sqliteDialect) rebind(query string) string { return query }

func (sqliteDialect) sessionSetup(config.DatabaseConfig) []string { return nil }

func (sqliteDialect) txOptions() *sql.TxOptions { return nil }

func (sqliteDialect) versionQuery() string { return "SELECT sqlite_version() AS version" }

func (sqliteDialect) classify(err error) failureKind {
	var sqlErr *sqlite.Error
	if !errors.As(err, &sqlErr) {
		return failureUnknown
	}
	code := sqlErr.Code()
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return failureDuplicate
	}
	// Extended codes carry the primary code in the low byte.
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return failureTransient
	case sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
		return failureConnection
	}
	return failureUnknown
}

func (sqliteDialect) nativeCall(RoutineKind, string, int) (string, bool) { return "", false }

// postgresDialect targets github.com/lib/pq.
type postgresDialect struct{}

func (postgresDialect) name() string       { return config.DriverPostgres }
func (postgresDialect) driverName() string { return "postgres" }

func (postgresDialect) dsn(cfg config.DatabaseConfig) (string, error) {
	if cfg.DSN == "" {
		return "", errors.New("postgres dsn is required")
	}
	return cfg.DSN, nil
}

// rebind turns ? into $1, $2, ... outside of quoted literals.
func (postgresDialect) rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (postgresDialect) sessionSetup(cfg config.DatabaseConfig) []string {
	var stmts []string
	if cfg.StatementTimeout > 0 {
		stmts = append(stmts, fmt.Sprintf("SET statement_timeout = %d", cfg.StatementTimeout.Milliseconds()))
	}
	if cfg.LockTimeout > 0 {
		stmts = append(stmts, fmt.Sprintf("SET lock_timeout = %d", cfg.LockTimeout.Milliseconds()))
	}
	if cfg.IdleInTransactionTimeout > 0 {
		stmts = append(stmts, fmt.Sprintf("SET idle_in_transaction_session_timeout = %d", cfg.IdleInTransactionTimeout.Milliseconds()))
	}
	return stmts
}

func (postgresDialect) txOptions() *sql.TxOptions {
	return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
}

func (postgresDialect) versionQuery() string { return "SHOW server_version" }

func (postgresDialect) classify(err error) failureKind {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return failureUnknown
	}
	switch pqErr.Code {
	case "23505":
		return failureDuplicate
	case "40001", "40P01", "55P03", "57014", "25P03":
		// serialization, deadlock, lock timeout, statement timeout,
		// idle-in-transaction timeout
		return failureTransient
	}
	switch pqErr.Code.Class() {
	case "08", "57":
		return failureConnection
	}
	return failureUnknown
}

func (postgresDialect) nativeCall(kind RoutineKind, name string, argc int) (string, bool) {
	placeholders := make([]string, argc)
	for i := range placeholders {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	args := strings.Join(placeholders, ", ")
	if kind == RoutineProcedure {
		return fmt.Sprintf("CALL %s(%s)", pq.QuoteIdentifier(name), args), true
	}
	return fmt.Sprintf("SELECT * FROM %s(%s)", pq.QuoteIdentifier(name), args), true
}
