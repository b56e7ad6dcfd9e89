package dbpool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainErr "github.com/ersonp/chronicle/internal/domain/errors"
	"github.com/ersonp/chronicle/internal/infrastructure/config"
)

// setupTestManager opens a pool on a SQLite file in a temp dir.
func setupTestManager(t *testing.T, tweak func(*config.DatabaseConfig)) *Manager {
	t.Helper()

	cfg := config.Default().Database
	cfg.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.InitBackoff = time.Millisecond
	if tweak != nil {
		tweak(&cfg)
	}

	retry := config.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}

	m, err := Open(context.Background(), cfg, retry)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	_, err = m.Exec(context.Background(), `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	return m
}

func countItems(t *testing.T, m *Manager) int64 {
	t.Helper()
	row, err := m.QueryRow(context.Background(), `SELECT COUNT(*) AS n FROM items`)
	require.NoError(t, err)
	return row["n"].(int64)
}

func TestOpen(t *testing.T) {
	t.Run("unsupported driver", func(t *testing.T) {
		_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle"}, config.RetryConfig{})
		require.Error(t, err)
		stage, ok := domainErr.StageOf(err)
		require.True(t, ok)
		assert.Equal(t, domainErr.StageInit, stage)
	})

	t.Run("sqlite without path", func(t *testing.T) {
		_, err := Open(context.Background(), config.DatabaseConfig{Driver: config.DriverSQLite}, config.RetryConfig{})
		require.Error(t, err)
		assert.ErrorIs(t, err, domainErr.ErrDatabase)
	})

	t.Run("retries initialization", func(t *testing.T) {
		calls := 0
		openDB = func(string, string) (*sql.DB, error) {
			calls++
			return nil, errors.New("connection refused")
		}
		t.Cleanup(func() { openDB = sql.Open })

		cfg := config.DatabaseConfig{
			Driver:       config.DriverSQLite,
			Path:         filepath.Join(t.TempDir(), "x.db"),
			MaxSessions:  1,
			InitAttempts: 3,
			InitBackoff:  time.Millisecond,
		}
		_, err := Open(context.Background(), cfg, config.RetryConfig{})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.False(t, domainErr.IsRetryable(err))
		stage, _ := domainErr.StageOf(err)
		assert.Equal(t, domainErr.StageInit, stage)
	})
}

func TestManager_WithTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		m := setupTestManager(t, nil)
		err := m.WithTransaction(ctx, func(ctx context.Context) error {
			_, err := m.Exec(ctx, `INSERT INTO items (name) VALUES (?)`, "a")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), countItems(t, m))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		m := setupTestManager(t, nil)
		boom := errors.New("boom")
		err := m.WithTransaction(ctx, func(ctx context.Context) error {
			if _, err := m.Exec(ctx, `INSERT INTO items (name) VALUES (?)`, "a"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, int64(0), countItems(t, m))
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		m := setupTestManager(t, nil)
		boom := errors.New("boom")
		err := m.WithTransaction(ctx, func(ctx context.Context) error {
			err := m.WithTransaction(ctx, func(ctx context.Context) error {
				_, err := m.Exec(ctx, `INSERT INTO items (name) VALUES (?)`, "inner")
				return err
			})
			require.NoError(t, err)

			row, err := m.QueryRow(ctx, `SELECT COUNT(*) AS n FROM items`)
			require.NoError(t, err)
			assert.Equal(t, int64(1), row["n"])
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, int64(0), countItems(t, m))
	})

	t.Run("rolls back on panic and keeps the pool usable", func(t *testing.T) {
		m := setupTestManager(t, func(c *config.DatabaseConfig) { c.MaxSessions = 1 })
		assert.Panics(t, func() {
			_ = m.WithTransaction(ctx, func(ctx context.Context) error {
				_, _ = m.Exec(ctx, `INSERT INTO items (name) VALUES (?)`, "a")
				panic("boom")
			})
		})
		assert.Equal(t, int64(0), countItems(t, m))
	})
}

func TestManager_CheckoutTimeout(t *testing.T) {
	m := setupTestManager(t, func(c *config.DatabaseConfig) {
		c.MaxSessions = 1
		c.CheckoutTimeout = 50 * time.Millisecond
	})

	err := m.WithConnection(context.Background(), func(ctx context.Context, s *Session) error {
		_, err := m.acquire(context.Background())
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErr.ErrPoolExhausted)
	assert.True(t, domainErr.IsRetryable(err))
	stage, _ := domainErr.StageOf(err)
	assert.Equal(t, domainErr.StageAcquire, stage)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

// failPings makes the next n session pings fail as a broken connection.
func failPings(t *testing.T, n int) *int {
	t.Helper()
	calls := 0
	pingSession = func(ctx context.Context, conn *sql.Conn) error {
		calls++
		if calls <= n {
			return driver.ErrBadConn
		}
		return conn.PingContext(ctx)
	}
	t.Cleanup(func() {
		pingSession = func(ctx context.Context, conn *sql.Conn) error { return conn.PingContext(ctx) }
	})
	return &calls
}

func TestManager_EvictsBrokenSession(t *testing.T) {
	m := setupTestManager(t, func(c *config.DatabaseConfig) {
		c.MaxSessions = 1
		c.CheckoutTimeout = time.Second
	})
	ctx := context.Background()

	before := counterValue(t, evictions)
	calls := failPings(t, 1)

	rows, err := m.Query(ctx, `SELECT 1 AS one`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["one"])
	assert.Equal(t, 2, *calls)
	assert.Equal(t, before+1, counterValue(t, evictions))

	// The evicted session gave its slot back: the pool still serves requests.
	assert.LessOrEqual(t, m.db.Stats().OpenConnections, 1)
	assert.Equal(t, int64(0), countItems(t, m))
}

func TestManager_EvictionGivesUpAfterReplacement(t *testing.T) {
	m := setupTestManager(t, func(c *config.DatabaseConfig) {
		c.MaxSessions = 1
		c.CheckoutTimeout = time.Second
	})

	before := counterValue(t, evictions)
	failPings(t, 1000)

	_, err := m.Query(context.Background(), `SELECT 1 AS one`)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErr.ErrDatabase)
	stage, ok := domainErr.StageOf(err)
	require.True(t, ok)
	assert.Equal(t, domainErr.StageAcquire, stage)
	assert.GreaterOrEqual(t, counterValue(t, evictions), before+2)
}

func TestManager_Close(t *testing.T) {
	m := setupTestManager(t, nil)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Query(context.Background(), `SELECT 1`)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErr.ErrPoolClosed)
	assert.False(t, domainErr.IsRetryable(err))
}

func TestManager_Duplicate(t *testing.T) {
	m := setupTestManager(t, nil)
	ctx := context.Background()

	_, err := m.Exec(ctx, `INSERT INTO items (name) VALUES (?)`, "a")
	require.NoError(t, err)

	_, err = m.Exec(ctx, `INSERT INTO items (name) VALUES (?)`, "a")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainErr.ErrDuplicate)
}

func TestManager_Routines(t *testing.T) {
	m := setupTestManager(t, nil)
	ctx := context.Background()

	require.NoError(t, m.Register(
		Routine{Name: "add_item", Kind: RoutineProcedure, SQL: `INSERT INTO items (name) VALUES (?)`},
		Routine{Name: "count_items", Kind: RoutineFunction, SQL: `SELECT COUNT(*) AS n FROM items`, Returns: true, Idempotent: true},
	))

	rows, err := m.CallProcedure(ctx, "add_item", "a")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["rows_affected"])

	rows, err = m.CallFunction(ctx, "count_items")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["n"])

	t.Run("kind mismatch", func(t *testing.T) {
		_, err := m.CallFunction(ctx, "add_item", "b")
		require.Error(t, err)
		assert.ErrorIs(t, err, domainErr.ErrDatabase)
	})

	t.Run("unknown routine without native support", func(t *testing.T) {
		_, err := m.CallProcedure(ctx, "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, domainErr.ErrDatabase)
	})

	t.Run("invalid registration", func(t *testing.T) {
		require.Error(t, m.Register(Routine{Name: "empty"}))
		require.Error(t, m.Register(Routine{SQL: "SELECT 1"}))
	})
}

func TestManager_Health(t *testing.T) {
	m := setupTestManager(t, nil)

	report := m.Health(context.Background())
	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, config.DriverSQLite, report.Driver)
	assert.NotEmpty(t, report.ServerVersion)
	assert.Empty(t, report.Error)
	assert.Equal(t, 8, report.MaxSessions)

	require.NoError(t, m.Close())
	report = m.Health(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.NotEmpty(t, report.Error)
}
