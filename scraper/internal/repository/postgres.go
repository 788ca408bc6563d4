package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bborgeswq/eproc-scraper-2.0/common/database"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// The sync runs one case at a time; a small pool is plenty.
	config.MaxConns = 5
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	return r.pool.Ping(ctx)
}

// =============================================================================
// CASES (natural key: case_id)
// =============================================================================

func (r *PostgresRepository) ListCaseIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT case_id FROM cases`)
	if err != nil {
		return nil, fmt.Errorf("failed to list case ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan case ids: %w", err)
	}
	return ids, nil
}

const caseColumns = `
	case_id, representation_side, COALESCE(advocate_role, ''),
	COALESCE(class, ''), COALESCE(jurisdiction, ''), filed_on, COALESCE(situation, ''),
	COALESCE(judging_body, ''), COALESCE(judge, ''), COALESCE(court, ''),
	related_cases, subjects, parties,
	COALESCE(deadline_description, ''), deadline_sent_at, deadline_start, deadline_end,
	created_at, updated_at, last_synced_at`

func scanCase(row pgx.Row) (*models.Case, error) {
	var c models.Case
	var side string
	err := row.Scan(
		&c.ID, &side, &c.AdvocateRole,
		&c.Class, &c.Jurisdiction, &c.FiledOn, &c.Situation,
		&c.JudgingBody, &c.Judge, &c.Court,
		&c.RelatedCases, &c.Subjects, &c.Parties,
		&c.Deadline.Description, &c.Deadline.SentAt, &c.Deadline.Start, &c.Deadline.End,
		&c.CreatedAt, &c.UpdatedAt, &c.LastSyncedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Side = models.Side(side)
	return &c, nil
}

func (r *PostgresRepository) GetCase(ctx context.Context, id string) (*models.Case, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	c, err := scanCase(r.pool.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE case_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) ListCases(ctx context.Context) ([]*models.Case, error) {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+caseColumns+` FROM cases ORDER BY deadline_end NULLS LAST, case_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var cases []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

func (r *PostgresRepository) UpsertCase(ctx context.Context, c *models.Case) error {
	if err := c.Validate(); err != nil {
		return err
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO cases (
			case_id, representation_side, advocate_role,
			class, jurisdiction, filed_on, situation, judging_body, judge, court,
			related_cases, subjects, parties,
			deadline_description, deadline_sent_at, deadline_start, deadline_end,
			last_synced_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (case_id) DO UPDATE SET
			representation_side = EXCLUDED.representation_side,
			advocate_role = EXCLUDED.advocate_role,
			class = EXCLUDED.class,
			jurisdiction = EXCLUDED.jurisdiction,
			filed_on = EXCLUDED.filed_on,
			situation = EXCLUDED.situation,
			judging_body = EXCLUDED.judging_body,
			judge = EXCLUDED.judge,
			court = EXCLUDED.court,
			related_cases = EXCLUDED.related_cases,
			subjects = EXCLUDED.subjects,
			parties = EXCLUDED.parties,
			deadline_description = EXCLUDED.deadline_description,
			deadline_sent_at = EXCLUDED.deadline_sent_at,
			deadline_start = EXCLUDED.deadline_start,
			deadline_end = EXCLUDED.deadline_end,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = NOW()
	`

	side := c.Side
	if side == "" {
		side = models.SideUnknown
	}

	_, err := r.pool.Exec(ctx, query,
		c.ID, string(side), c.AdvocateRole,
		c.Class, c.Jurisdiction, c.FiledOn, c.Situation, c.JudgingBody, c.Judge, c.Court,
		nonNil(c.RelatedCases), nonNil(c.Subjects), nonNil(c.Parties),
		c.Deadline.Description, c.Deadline.SentAt, c.Deadline.Start, c.Deadline.End,
		c.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert case: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateCaseDeadline(ctx context.Context, id string, deadline models.Deadline) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	query := `
		UPDATE cases
		SET deadline_description = $2, deadline_sent_at = $3, deadline_start = $4, deadline_end = $5,
		    last_synced_at = NOW(), updated_at = NOW()
		WHERE case_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, deadline.Description, deadline.SentAt, deadline.Start, deadline.End)
	if err != nil {
		return fmt.Errorf("failed to update case deadline: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteCase(ctx context.Context, id string) error {
	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM cases WHERE case_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

// =============================================================================
// EVENTS (natural key: case_id + seq, insert-once)
// =============================================================================

func (r *PostgresRepository) MaxEventSeq(ctx context.Context, caseID string) (int, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var max int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE case_id = $1`, caseID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to get max event seq: %w", err)
	}
	return max, nil
}

func (r *PostgresRepository) UpsertEvent(ctx context.Context, e *models.Event) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	// Stored events are never rewritten.
	query := `
		INSERT INTO events (
			case_id, seq, occurred_at, description, actor,
			has_deadline, deadline_days, deadline_status, deadline_start, deadline_end,
			refers_to, urgent
		)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, $10, $11, $12)
		ON CONFLICT (case_id, seq) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		e.CaseID, e.Seq, e.OccurredAt, e.Description, e.Actor,
		e.HasDeadline, e.DeadlineDays, e.DeadlineStatus, e.DeadlineStart, e.DeadlineEnd,
		e.RefersTo, e.Urgent,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrCaseNotFound
		}
		return fmt.Errorf("failed to upsert event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListEvents(ctx context.Context, caseID string) ([]*models.Event, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT case_id, seq, occurred_at, description, COALESCE(actor, ''),
		       has_deadline, deadline_days, COALESCE(deadline_status, ''), deadline_start, deadline_end,
		       refers_to, urgent, created_at
		FROM events
		WHERE case_id = $1
		ORDER BY seq
	`

	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(
			&e.CaseID, &e.Seq, &e.OccurredAt, &e.Description, &e.Actor,
			&e.HasDeadline, &e.DeadlineDays, &e.DeadlineStatus, &e.DeadlineStart, &e.DeadlineEnd,
			&e.RefersTo, &e.Urgent, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// =============================================================================
// DOCUMENTS (natural key: case_id + event_seq + external_ref)
// =============================================================================

func (r *PostgresRepository) DocumentExists(ctx context.Context, key models.DocumentKey) (bool, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM documents WHERE case_id = $1 AND event_seq = $2 AND external_ref = $3
		)`, key.CaseID, key.EventSeq, key.ExternalRef).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check document: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) UpsertDocument(ctx context.Context, d *models.Document) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	if d.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate document id: %w", err)
		}
		d.ID = id.String()
	}

	query := `
		INSERT INTO documents (
			id, case_id, event_seq, external_ref, original_name, doc_type,
			storage_path, storage_url, size_bytes, content_hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT ON CONSTRAINT documents_natural_key DO UPDATE SET
			original_name = EXCLUDED.original_name,
			doc_type = EXCLUDED.doc_type,
			storage_path = EXCLUDED.storage_path,
			storage_url = EXCLUDED.storage_url,
			size_bytes = EXCLUDED.size_bytes,
			content_hash = EXCLUDED.content_hash
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		d.ID, d.CaseID, d.EventSeq, d.ExternalRef, d.OriginalName, string(d.Type),
		d.StoragePath, d.StorageURL, d.SizeBytes, d.ContentHash,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("document %s references unknown event %s#%d: %w", d.ExternalRef, d.CaseID, d.EventSeq, ErrCaseNotFound)
		}
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListDocuments(ctx context.Context, caseID string) ([]*models.Document, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	query := `
		SELECT id, case_id, event_seq, external_ref, original_name, doc_type,
		       storage_path, COALESCE(storage_url, ''), size_bytes, content_hash, created_at
		FROM documents
		WHERE case_id = $1
		ORDER BY event_seq, original_name
	`

	rows, err := r.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var d models.Document
		var docType string
		if err := rows.Scan(
			&d.ID, &d.CaseID, &d.EventSeq, &d.ExternalRef, &d.OriginalName, &docType,
			&d.StoragePath, &d.StorageURL, &d.SizeBytes, &d.ContentHash, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.Type = models.DocumentType(docType)
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// =============================================================================
// SYNC RUNS
// =============================================================================

func (r *PostgresRepository) CreateRun(ctx context.Context, run *models.RunLog) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO sync_runs (id, started_at, status) VALUES ($1, $2, $3)`,
		run.ID, run.StartedAt, string(run.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FinishRun(ctx context.Context, run *models.RunLog) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	// Upsert so a run whose start record was lost is still logged.
	query := `
		INSERT INTO sync_runs (
			id, started_at, finished_at, status, cases_added, cases_removed, cases_updated,
			errors, documents_uploaded, has_pending, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			status = EXCLUDED.status,
			cases_added = EXCLUDED.cases_added,
			cases_removed = EXCLUDED.cases_removed,
			cases_updated = EXCLUDED.cases_updated,
			errors = EXCLUDED.errors,
			documents_uploaded = EXCLUDED.documents_uploaded,
			has_pending = EXCLUDED.has_pending,
			error_message = EXCLUDED.error_message
	`

	_, err := r.pool.Exec(ctx, query,
		run.ID, run.StartedAt, run.FinishedAt, string(run.Status),
		run.Added, run.Removed, run.Updated, run.Errors, run.DocumentsUploaded,
		run.HasPending, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	return nil
}

const runColumns = `
	id::text, started_at, finished_at, status, cases_added, cases_removed, cases_updated,
	errors, documents_uploaded, has_pending, error_message`

func scanRun(row pgx.Row) (*models.RunLog, error) {
	var run models.RunLog
	var status string
	err := row.Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &status,
		&run.Added, &run.Removed, &run.Updated, &run.Errors, &run.DocumentsUploaded,
		&run.HasPending, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	return &run, nil
}

func (r *PostgresRepository) GetRun(ctx context.Context, id string) (*models.RunLog, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get sync run: %w", err)
	}
	return run, nil
}

func (r *PostgresRepository) ListRuns(ctx context.Context, limit int) ([]*models.RunLog, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunLog
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// nonNil keeps NOT NULL array/jsonb columns from receiving SQL NULL.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
