// Package archive persists finished call records to Postgres. The archive is
// optional; without a configured database the process keeps everything in
// memory and on disk only.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"surveydialer/internal/tracker"
	"surveydialer/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Repository stores call records keyed by correlation id.
type Repository interface {
	SaveCallRecord(ctx context.Context, rec tracker.CallRecord) error
}

// Sink adapts a Repository to the tracker's sink interface. Only terminal
// records are archived; intermediate snapshots stay on disk.
type Sink struct {
	repo    Repository
	log     *slog.Logger
	timeout time.Duration
}

func NewSink(repo Repository, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{repo: repo, log: log, timeout: 5 * time.Second}
}

func (s *Sink) WriteCallRecord(rec tracker.CallRecord) error {
	switch rec.Status {
	case tracker.StatusSurveyCompleted, tracker.StatusFailed:
	default:
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.repo.SaveCallRecord(ctx, rec); err != nil {
		s.log.Error("call archive write failed", "correlation_id", rec.CorrelationID, "err", err)
		return err
	}
	return nil
}

// PostgresRepository stores call records in the call_archive table. Records
// are upserted so repeated terminal snapshots stay idempotent.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the archive table when missing. Called once at boot.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS call_archive (
    correlation_id    TEXT PRIMARY KEY,
    to_number         TEXT NOT NULL,
    conversation_uuid TEXT,
    status            TEXT NOT NULL,
    started_at        TIMESTAMPTZ NOT NULL,
    record            JSONB NOT NULL,
    archived_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)
`
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("archive: ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SaveCallRecord(ctx context.Context, rec tracker.CallRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO call_archive (correlation_id, to_number, conversation_uuid, status, started_at, record, archived_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (correlation_id) DO UPDATE SET
    conversation_uuid = EXCLUDED.conversation_uuid,
    status            = EXCLUDED.status,
    record            = EXCLUDED.record,
    archived_at       = now()
`
		_, err := tx.ExecContext(ctx, q,
			rec.CorrelationID,
			rec.ToNumber,
			rec.Call.ConversationUUID,
			string(rec.Status),
			rec.StartedAt,
			payload,
		)
		return err
	})
}
