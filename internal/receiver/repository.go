package receiver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines receiver persistence operations.
type Repository interface {
	// GetByID returns ErrReceiverNotFound if the receiver does not exist.
	GetByID(ctx context.Context, id string) (*Receiver, error)

	// List returns all receivers ordered by name.
	List(ctx context.Context) ([]Receiver, error)

	// Create returns ErrReceiverExists if the ID or device URL is taken.
	Create(ctx context.Context, r *Receiver) error

	// CreateIfNotExists inserts the receiver unless its ID or device URL is
	// already registered. It reports whether a row was inserted.
	CreateIfNotExists(ctx context.Context, r *Receiver) (bool, error)

	// Delete returns ErrReceiverNotFound if the receiver does not exist.
	Delete(ctx context.Context, id string) error

	// UpdateState merges the given keys into the stored state.
	UpdateState(ctx context.Context, id string, state State) error

	// UpdateHealth records reachability and, when online, the last-seen time.
	UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error
}

const selectColumns = `
	SELECT id, name, device_url, source, usn, state, state_updated_at,
		health_status, health_last_seen, created_at, updated_at
	FROM receivers`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open SQLite connection
// whose schema has been migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a receiver by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Receiver, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	rec, err := scanReceiver(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReceiverNotFound
		}
		return nil, fmt.Errorf("querying receiver by id: %w", err)
	}
	return rec, nil
}

// List retrieves all receivers.
func (r *SQLiteRepository) List(ctx context.Context) ([]Receiver, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+" ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("querying receivers: %w", err)
	}
	defer rows.Close()

	var receivers []Receiver
	for rows.Next() {
		rec, err := scanReceiver(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning receiver: %w", err)
		}
		receivers = append(receivers, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating receivers: %w", err)
	}
	return receivers, nil
}

// Create inserts a new receiver after validating it.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Receiver) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
		INSERT INTO receivers (
			id, name, device_url, source, usn, state, state_updated_at,
			health_status, health_last_seen, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Name,
		rec.DeviceURL,
		string(rec.Source),
		nullableString(rec.USN),
		string(stateJSON),
		nullableTime(rec.StateUpdatedAt),
		string(rec.HealthStatus),
		nullableTime(rec.HealthLastSeen),
		rec.CreatedAt.Format(time.RFC3339),
		rec.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrReceiverExists
		}
		return fmt.Errorf("inserting receiver: %w", err)
	}
	return nil
}

// CreateIfNotExists inserts the receiver unless it is already registered.
func (r *SQLiteRepository) CreateIfNotExists(ctx context.Context, rec *Receiver) (bool, error) {
	err := r.Create(ctx, rec)
	if errors.Is(err, ErrReceiverExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a receiver by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM receivers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting receiver: %w", err)
	}
	return requireRow(result)
}

// UpdateState merges state into the stored state with json_patch, so keys
// missing from state keep their previous value.
func (r *SQLiteRepository) UpdateState(ctx context.Context, id string, state State) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		UPDATE receivers
		SET state = json_patch(COALESCE(state, '{}'), ?),
		    state_updated_at = ?,
		    updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, string(stateJSON), now, now, id)
	if err != nil {
		return fmt.Errorf("updating receiver state: %w", err)
	}
	return requireRow(result)
}

// UpdateHealth records the health status. The last-seen time only moves
// forward when the receiver answered; an offline report keeps the old value.
func (r *SQLiteRepository) UpdateHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var seen sql.NullString
	if status == HealthOnline {
		seen = sql.NullString{String: lastSeen.UTC().Format(time.RFC3339), Valid: true}
	}

	query := `
		UPDATE receivers
		SET health_status = ?,
		    health_last_seen = COALESCE(?, health_last_seen),
		    updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, string(status), seen, now, id)
	if err != nil {
		return fmt.Errorf("updating receiver health: %w", err)
	}
	return requireRow(result)
}

// requireRow maps "no rows affected" to ErrReceiverNotFound.
func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrReceiverNotFound
	}
	return nil
}

// rowScanner is implemented by both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceiver(scanner rowScanner) (*Receiver, error) {
	var rec Receiver
	var source, stateJSON, healthStatus, createdAt, updatedAt string
	var usn, stateUpdatedAt, healthLastSeen sql.NullString

	err := scanner.Scan(
		&rec.ID,
		&rec.Name,
		&rec.DeviceURL,
		&source,
		&usn,
		&stateJSON,
		&stateUpdatedAt,
		&healthStatus,
		&healthLastSeen,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Source = Source(source)
	rec.HealthStatus = HealthStatus(healthStatus)
	if usn.Valid {
		rec.USN = &usn.String
	}
	rec.StateUpdatedAt = parseNullableTime(stateUpdatedAt)
	rec.HealthLastSeen = parseNullableTime(healthLastSeen)

	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}
	if rec.State == nil {
		rec.State = State{}
	}
	return &rec, nil
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// isUniqueConstraintError checks for a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
