package relationaldb

import (
	"fmt"
	"strings"

	"github.com/ersonp/chronicle/internal/domain/entities"
	"github.com/ersonp/chronicle/internal/infrastructure/config"
	"github.com/ersonp/chronicle/internal/infrastructure/dbpool"
)

const changeRequestColumns = `id, entity_type, operation_type, entity_id, requester_id, payload,
	prior_snapshot, request_comment, status, reviewer_id, review_comment, reviewed_at, created_at`

const auditColumns = `id, user_id, action_type, entity_type, entity_id, old_value, new_value, description, created_at`

// Routine names registered on the connection manager.
const (
	routineMarkReviewed   = "mark_change_request_reviewed"
	routinePurge          = "purge_change_requests"
	routineCountPurgeable = "count_purgeable_change_requests"
	routineAppendAudit    = "append_audit_record"
)

func routines() []dbpool.Routine {
	return []dbpool.Routine{
		{
			// The status guard makes check-then-set a single statement, so
			// two concurrent reviews cannot both succeed.
			Name: routineMarkReviewed,
			Kind: dbpool.RoutineFunction,
			SQL: `UPDATE change_requests
				SET status = ?, reviewer_id = ?, review_comment = ?, reviewed_at = ?
				WHERE id = ? AND status = 'PENDING'
				RETURNING ` + changeRequestColumns,
			Returns: true,
		},
		{
			Name: routinePurge,
			Kind: dbpool.RoutineProcedure,
			SQL: `DELETE FROM change_requests
				WHERE status IN ('APPROVED', 'REJECTED') AND reviewed_at IS NOT NULL AND reviewed_at < ?`,
			Idempotent: true,
		},
		{
			Name: routineCountPurgeable,
			Kind: dbpool.RoutineFunction,
			SQL: `SELECT COUNT(*) AS n FROM change_requests
				WHERE status IN ('APPROVED', 'REJECTED') AND reviewed_at IS NOT NULL AND reviewed_at < ?`,
			Returns:    true,
			Idempotent: true,
		},
		{
			Name: routineAppendAudit,
			Kind: dbpool.RoutineFunction,
			SQL: `INSERT INTO audit_log (user_id, action_type, entity_type, entity_id, old_value, new_value, description, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				RETURNING id`,
			Returns: true,
		},
	}
}

// schemaStatements returns the DDL for driver. Timestamps are stored as
// fixed-width UTC text on both drivers.
func schemaStatements(driver string) []string {
	auditID := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == config.DriverPostgres {
		auditID = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role INTEGER NOT NULL CHECK (role BETWEEN 1 AND 3),
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS change_requests (
			id TEXT PRIMARY KEY,
			entity_type TEXT NOT NULL,
			operation_type TEXT NOT NULL,
			entity_id TEXT,
			requester_id TEXT NOT NULL,
			payload TEXT,
			prior_snapshot TEXT,
			request_comment TEXT,
			status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
			reviewer_id TEXT,
			review_comment TEXT,
			reviewed_at TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_change_requests_status ON change_requests(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_change_requests_requester ON change_requests(requester_id)`,
		`CREATE INDEX IF NOT EXISTS idx_change_requests_reviewed ON change_requests(reviewed_at)`,

		`CREATE TABLE IF NOT EXISTS audit_log (
			id ` + auditID + `,
			user_id TEXT,
			action_type TEXT NOT NULL,
			entity_type TEXT,
			entity_id TEXT,
			old_value TEXT,
			new_value TEXT,
			description TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_type, entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action_type)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_created ON audit_log(created_at)`,
	}

	for _, t := range entities.EntityTypes {
		kind := entities.CatalogKinds[t]
		cols := make([]string, 0, len(kind.Fields))
		for _, f := range kind.Fields {
			notNull := ""
			if f == kind.LabelField {
				notNull = " NOT NULL"
			}
			cols = append(cols, fmt.Sprintf("%s TEXT%s", f, notNull))
		}
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			%s,
			created_by TEXT,
			updated_by TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`, kind.Table, strings.Join(cols, ",\n\t\t\t")),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_label ON %s(%s)`, kind.Table, kind.Table, kind.LabelField),
		)
	}
	return stmts
}
