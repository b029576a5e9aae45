package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"support-agent/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// PostgresLogStore keeps the chat log stream and alerts in Postgres. It is an
// alternative to the DynamoDB log partition for deployments that already
// report from SQL.
type PostgresLogStore struct {
	db *sql.DB
}

func NewPostgresLogStore(db *sql.DB) (*PostgresLogStore, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	return &PostgresLogStore{db: db}, nil
}

// Migrate creates the log and alert tables if they do not exist.
func (p *PostgresLogStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("repository: Migrate: %w", err)
	}
	return nil
}

func (p *PostgresLogStore) AppendLog(ctx context.Context, rec domain.LogRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	var score sql.NullFloat64
	if rec.FlagScore != nil {
		score = sql.NullFloat64{Float64: *rec.FlagScore, Valid: true}
	}
	label := sql.NullString{String: rec.FlagLabel, Valid: rec.FlagLabel != ""}

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO chat_logs (session_id, actor, content, actor_role, flag_score, flag_label, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.SessionID, rec.Actor, rec.Content, rec.ActorRole, score, label, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("repository: AppendLog: %w", err)
	}
	return nil
}

// RecentLogs returns up to limit log records, newest first.
func (p *PostgresLogStore) RecentLogs(ctx context.Context, limit int) ([]domain.LogRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT session_id, actor, content, actor_role, flag_score, flag_label, created_at
         FROM chat_logs
         ORDER BY created_at DESC, id DESC
         LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: RecentLogs query: %w", err)
	}
	defer rows.Close()

	var recs []domain.LogRecord
	for rows.Next() {
		var (
			rec   domain.LogRecord
			score sql.NullFloat64
			label sql.NullString
		)
		if err := rows.Scan(&rec.SessionID, &rec.Actor, &rec.Content, &rec.ActorRole, &score, &label, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("repository: RecentLogs scan: %w", err)
		}
		if score.Valid {
			v := score.Float64
			rec.FlagScore = &v
		}
		rec.FlagLabel = label.String
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: RecentLogs rows: %w", err)
	}
	return recs, nil
}

func (p *PostgresLogStore) SaveAlert(ctx context.Context, alert domain.AlertRecord) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO user_alerts (actor_role, flag, message, alert_type, created_at)
         VALUES ($1, $2, $3, $4, $5)`,
		alert.ActorRole, alert.Flag, alert.Message, alert.Type, alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("repository: SaveAlert: %w", err)
	}
	return nil
}
