package dbpool

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// HealthReport describes the store and the pool at one point in time.
type HealthReport struct {
	Status        string        `json:"status"`
	Driver        string        `json:"driver"`
	ServerVersion string        `json:"server_version,omitempty"`
	Latency       time.Duration `json:"latency"`
	OpenSessions  int           `json:"open_sessions"`
	InUse         int           `json:"in_use"`
	Idle          int           `json:"idle"`
	MaxSessions   int           `json:"max_sessions"`
	WaitCount     int64         `json:"wait_count"`
	WaitDuration  time.Duration `json:"wait_duration"`
	Error         string        `json:"error,omitempty"`
	CheckedAt     time.Time     `json:"checked_at"`
}

// Health probes the store with a short query. It never fails: problems are
// reported as a degraded status.
func (m *Manager) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:      StatusOK,
		Driver:      m.dialect.name(),
		MaxSessions: m.cfg.MaxSessions,
		CheckedAt:   time.Now().UTC(),
	}

	start := time.Now()
	err := m.WithConnection(ctx, func(ctx context.Context, s *Session) error {
		row, err := s.QueryRow(ctx, m.dialect.versionQuery())
		if err != nil {
			return err
		}
		for _, v := range row {
			report.ServerVersion = fmt.Sprint(v)
		}
		return nil
	})
	report.Latency = time.Since(start)

	if err != nil {
		report.Status = StatusDegraded
		report.Error = err.Error()
		healthUp.Set(0)
		log.WithError(err).Warn("database health check failed")
	} else {
		healthUp.Set(1)
	}

	if !m.closed.Load() {
		stats := m.db.Stats()
		report.OpenSessions = stats.OpenConnections
		report.InUse = stats.InUse
		report.Idle = stats.Idle
		report.WaitCount = stats.WaitCount
		report.WaitDuration = stats.WaitDuration
	}
	return report
}
