package comm

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const createEventsTable = `
CREATE TABLE IF NOT EXISTS monitoring_events (
	id         BIGSERIAL PRIMARY KEY,
	component  TEXT        NOT NULL,
	operation  TEXT        NOT NULL,
	outcome    TEXT        NOT NULL,
	duration_us BIGINT     NOT NULL,
	agent_id   TEXT,
	session_id TEXT,
	detail     TEXT,
	at         TIMESTAMPTZ NOT NULL
)`

// PostgresSink writes monitoring events to a table so external dashboards
// can read operation history without touching process state. Writes are
// best-effort: a failed insert is logged, never propagated to the caller.
type PostgresSink struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresSink connects to the given DSN and ensures the events table
// exists.
func NewPostgresSink(dsn string, logger *zap.Logger) (*PostgresSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open monitoring database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping monitoring database: %w", err)
	}
	if _, err := db.Exec(createEventsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create monitoring_events table: %w", err)
	}
	return &PostgresSink{db: db, logger: logger.Named("pgsink")}, nil
}

func (s *PostgresSink) Emit(ev Event) {
	_, err := s.db.Exec(
		`INSERT INTO monitoring_events (component, operation, outcome, duration_us, agent_id, session_id, detail, at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)`,
		ev.Component, ev.Operation, ev.Outcome, ev.Duration.Microseconds(),
		ev.AgentID, ev.SessionID, ev.Detail, ev.At,
	)
	if err != nil {
		s.logger.Warn("Failed to record monitoring event", zap.Error(err))
	}
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}
