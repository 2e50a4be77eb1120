package forwarder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// recordIDPrefix marks command record identifiers.
const recordIDPrefix = "cmd-"

// defaultListLimit bounds List when no limit is given.
const defaultListLimit = 100

// timestampLayout has a fixed-width fraction so stored times sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Store defines the persistence operations for command records.
type Store interface {
	// Create inserts a pending record, assigning ID and CreatedAt if unset.
	Create(ctx context.Context, rec *Record) error

	// Get returns a record by ID or ErrRecordNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns records, newest first.
	List(ctx context.Context, filter ListFilter) ([]Record, error)

	// Complete writes the terminal outcome. It succeeds at most once per
	// record; later calls return ErrAlreadyProcessed.
	Complete(ctx context.Context, id string, outcome Outcome) error
}

// SQLiteRepository implements Store using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed record store.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new pending record.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = recordIDPrefix + uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Microsecond)
	rec.Status = StatusPending
	rec.Processed = false
	rec.ProcessedAt = nil
	rec.Error = ""

	const query = `INSERT INTO command_records
		(id, esp_host, action, auth_key, duration, status, processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.ESPHost, rec.Action, rec.Key, nullInt(rec.Duration),
		string(rec.Status), rec.CreatedAt.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns a single record by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	const query = `SELECT id, esp_host, action, auth_key, duration, status,
		processed, processed_at, error, created_at
		FROM command_records WHERE id = ?`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying record %s: %w", id, err)
	}
	return rec, nil
}

// List returns records newest first, optionally filtered by status.
func (r *SQLiteRepository) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT id, esp_host, action, auth_key, duration, status,
		processed, processed_at, error, created_at
		FROM command_records`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// Complete writes the outcome in one conditional update. The processed
// flag makes the transition out of pending happen at most once.
func (r *SQLiteRepository) Complete(ctx context.Context, id string, outcome Outcome) error {
	if outcome.Status != StatusDone && outcome.Status != StatusFailed {
		return ErrInvalidOutcome
	}
	if outcome.ProcessedAt.IsZero() {
		outcome.ProcessedAt = time.Now().UTC()
	}

	const query = `UPDATE command_records
		SET status = ?, processed = 1, processed_at = ?, error = ?
		WHERE id = ? AND processed = 0`
	result, err := r.db.ExecContext(ctx, query,
		string(outcome.Status),
		outcome.ProcessedAt.UTC().Format(timestampLayout),
		nullString(outcome.Error),
		id,
	)
	if err != nil {
		return fmt.Errorf("completing record %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("completing record %s: %w", id, err)
	}
	if n == 0 {
		if _, getErr := r.Get(ctx, id); errors.Is(getErr, ErrRecordNotFound) {
			return ErrRecordNotFound
		}
		return ErrAlreadyProcessed
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec         Record
		status      string
		processed   int
		duration    sql.NullInt64
		processedAt sql.NullString
		errText     sql.NullString
		createdAt   string
	)
	err := row.Scan(&rec.ID, &rec.ESPHost, &rec.Action, &rec.Key, &duration,
		&status, &processed, &processedAt, &errText, &createdAt)
	if err != nil {
		return nil, err
	}

	rec.Status = Status(status)
	rec.Processed = processed == 1
	rec.Error = errText.String
	if duration.Valid {
		d := int(duration.Int64)
		rec.Duration = &d
	}
	if processedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, processedAt.String); err == nil {
			rec.ProcessedAt = &t
		}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // format is ours
	return &rec, nil
}

// nullInt converts an *int to a sql.NullInt64 for nullable columns.
func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// nullString stores empty strings as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
