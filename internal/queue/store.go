package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"clipflow/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the job database location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new pending job for a source clip. At most one job may
// exist per source reference; a duplicate returns ErrConflict.
func (s *Store) Create(ctx context.Context, sourceRef, fileName string) (*Job, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return nil, errors.New("source ref must not be empty")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO video_jobs (source_ref, file_name, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		sourceRef,
		fileName,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: job exists for source %q", ErrConflict, sourceRef)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM video_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetBySourceRef returns the job recorded for a source reference, or
// ErrNotFound when the clip has never been seen.
func (s *Store) GetBySourceRef(ctx context.Context, sourceRef string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM video_jobs WHERE source_ref = ? LIMIT 1`,
		sourceRef,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: source %q", ErrNotFound, sourceRef)
	}
	if err != nil {
		return nil, fmt.Errorf("get job by source: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM video_jobs`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Update persists the mutable fields of a job with a compare-and-swap on the
// status column. The write only lands when the stored status still equals
// expected; otherwise ErrConflict is returned and the caller must re-read.
// Status changes are additionally checked against the transition graph.
func (s *Store) Update(ctx context.Context, job *Job, expected Status) (*Job, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	if job.Status != expected && !CanTransition(expected, job.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, expected, job.Status)
	}

	now := time.Now().UTC()
	job.UpdatedAt = now
	if job.Status == StatusDone && job.CompletedAt == nil {
		job.CompletedAt = &now
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE video_jobs
         SET status = ?, retry_count = ?, last_error = ?, failed_stage = ?,
             trim_start_sec = ?, trim_end_sec = ?, hook_text = ?, caption_style = ?,
             caption = ?, hashtags_json = ?, transcript_json = ?, local_source_path = ?,
             edited_output_path = ?, captions_path = ?, publish_results_json = ?,
             updated_at = ?, completed_at = ?
         WHERE id = ? AND status = ?`,
		job.Status,
		job.RetryCount,
		nullableString(job.LastError),
		nullableString(string(job.FailedStage)),
		job.TrimStartSec,
		job.TrimEndSec,
		nullableString(job.HookText),
		nullableString(job.CaptionStyle),
		nullableString(job.Caption),
		nullableString(job.HashtagsJSON),
		nullableString(job.TranscriptJSON),
		nullableString(job.LocalSourcePath),
		nullableString(job.EditedOutputPath),
		nullableString(job.CaptionsPath),
		nullableString(job.PublishResultsJSON),
		now.Format(time.RFC3339Nano),
		nullableTime(job.CompletedAt),
		job.ID,
		expected,
	)
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := s.GetByID(ctx, job.ID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: job %d is %s, expected %s", ErrConflict, job.ID, current.Status, expected)
	}
	return s.GetByID(ctx, job.ID)
}

// RetryFailed moves a failed job back into the pipeline at the stage it
// failed at, clearing the recorded error. Jobs in any other status return
// ErrConflict. Retry history (retry_count) is preserved for observability.
func (s *Store) RetryFailed(ctx context.Context, id int64) (*Job, error) {
	job, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusFailed {
		return nil, fmt.Errorf("%w: job %d is %s, only failed jobs can be retried", ErrConflict, id, job.Status)
	}

	resume := job.ResumeStatus()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE video_jobs
         SET status = ?, last_error = NULL, failed_stage = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		resume,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("retry job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: job %d changed status during retry", ErrConflict, id)
	}
	return s.GetByID(ctx, id)
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM video_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// CountNonTerminal returns the number of jobs that can still progress. The
// orchestrator uses this for ingestion backpressure.
func (s *Store) CountNonTerminal(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM video_jobs WHERE status NOT IN (?, ?)`,
		StatusDone,
		StatusFailed,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count non-terminal jobs: %w", err)
	}
	return count, nil
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusFailed:
			health.Failed += count
		case StatusDone:
			health.Done += count
		default:
			health.Processing += count
		}
	}
	return health, nil
}

const jobColumns = "id, source_ref, file_name, status, retry_count, last_error, failed_stage, trim_start_sec, trim_end_sec, hook_text, caption_style, caption, hashtags_json, transcript_json, local_source_path, edited_output_path, captions_path, publish_results_json, created_at, updated_at, completed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id             int64
		sourceRef      string
		fileName       string
		statusStr      string
		retryCount     int
		lastError      sql.NullString
		failedStage    sql.NullString
		trimStart      float64
		trimEnd        float64
		hookText       sql.NullString
		captionStyle   sql.NullString
		caption        sql.NullString
		hashtags       sql.NullString
		transcript     sql.NullString
		localSource    sql.NullString
		editedOutput   sql.NullString
		captionsPath   sql.NullString
		publishResults sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		completedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourceRef,
		&fileName,
		&statusStr,
		&retryCount,
		&lastError,
		&failedStage,
		&trimStart,
		&trimEnd,
		&hookText,
		&captionStyle,
		&caption,
		&hashtags,
		&transcript,
		&localSource,
		&editedOutput,
		&captionsPath,
		&publishResults,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:                 id,
		SourceRef:          sourceRef,
		FileName:           fileName,
		Status:             Status(statusStr),
		RetryCount:         retryCount,
		LastError:          lastError.String,
		FailedStage:        Status(failedStage.String),
		TrimStartSec:       trimStart,
		TrimEndSec:         trimEnd,
		HookText:           hookText.String,
		CaptionStyle:       captionStyle.String,
		Caption:            caption.String,
		HashtagsJSON:       hashtags.String,
		TranscriptJSON:     transcript.String,
		LocalSourcePath:    localSource.String,
		EditedOutputPath:   editedOutput.String,
		CaptionsPath:       captionsPath.String,
		PublishResultsJSON: publishResults.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
