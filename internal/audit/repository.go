// Package audit records every provisioning attempt in the provisionings
// table and serves it back for GET /provisionings.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/fiware-provisioner/internal/provisioning"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeFormat is fixed width so created_at sorts as text.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
)

// Stage is one stage timing of a recorded attempt.
type Stage struct {
	Stage      string `json:"stage"`
	DurationMS int64  `json:"duration_ms"`
	Failed     bool   `json:"failed,omitempty"`
}

// Record is one provisioning attempt.
type Record struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	ExternalID  string    `json:"external_id"`
	DeviceID    string    `json:"device_id,omitempty"`
	EntityType  string    `json:"entity_type"`
	Outcome     string    `json:"outcome"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	Compensated bool      `json:"compensated"`
	DurationMS  int64     `json:"duration_ms"`
	Stages      []Stage   `json:"stages,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter controls which records to return.
type Filter struct {
	Outcome    string // optional: success, failure or rejected
	EntityType string // optional
	DeviceID   string // optional
	ExternalID string // optional
	Limit      int    // default 50, max 200
	Offset     int    // pagination offset
}

// ListResult contains one page of records.
type ListResult struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// Repository defines the interface for audit operations.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores records in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a record. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = "prv-" + uuid.NewString()[:8]
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var stagesJSON *string
	if len(rec.Stages) > 0 {
		b, err := json.Marshal(rec.Stages)
		if err != nil {
			return fmt.Errorf("marshalling stages: %w", err)
		}
		s := string(b)
		stagesJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO provisionings (id, request_id, external_id, device_id, entity_type, outcome,
		     failed_stage, error, compensated, duration_ms, stages, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, rec.ExternalID, nullableString(rec.DeviceID),
		rec.EntityType, rec.Outcome,
		nullableString(rec.FailedStage), nullableString(rec.Error),
		rec.Compensated, rec.DurationMS, stagesJSON,
		rec.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting provisioning record: %w", err)
	}
	return nil
}

// ObserveProvisioning records o. It lets the repository be registered as a
// provisioning observer.
func (r *SQLiteRepository) ObserveProvisioning(ctx context.Context, o provisioning.Outcome) error {
	return r.Create(ctx, RecordFromOutcome(o))
}

// RecordFromOutcome converts a provisioning outcome into a record.
func RecordFromOutcome(o provisioning.Outcome) *Record {
	rec := &Record{
		ID:          o.ID,
		RequestID:   o.RequestID,
		ExternalID:  o.ExternalID,
		DeviceID:    o.DeviceID,
		EntityType:  o.EntityType,
		Outcome:     o.Status,
		FailedStage: string(o.FailedStage),
		Error:       o.ErrorMessage(),
		Compensated: o.Compensated,
		DurationMS:  o.Duration.Milliseconds(),
		CreatedAt:   o.StartedAt,
	}
	for _, st := range o.Stages {
		rec.Stages = append(rec.Stages, Stage{
			Stage:      string(st.Stage),
			DurationMS: st.Duration.Milliseconds(),
			Failed:     st.Failed,
		})
	}
	return rec
}

// nullableString returns nil for empty strings so the column stays NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns records matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit // dynamic query builder
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"outcome", filter.Outcome},
		{"entity_type", filter.EntityType},
		{"device_id", filter.DeviceID},
		{"external_id", filter.ExternalID},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM provisionings %s", where) //nolint:gosec // WHERE built from fixed column names
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting provisioning records: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from fixed column names
		`SELECT id, request_id, external_id, device_id, entity_type, outcome, failed_stage, error,
		        compensated, duration_ms, stages, created_at
		 FROM provisionings %s ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying provisioning records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating provisioning records: %w", err)
	}

	return &ListResult{
		Records: records,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var deviceID, failedStage, errText, stagesJSON sql.NullString
	var createdAt string

	if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.ExternalID, &deviceID, &rec.EntityType,
		&rec.Outcome, &failedStage, &errText, &rec.Compensated, &rec.DurationMS,
		&stagesJSON, &createdAt); err != nil {
		return Record{}, fmt.Errorf("scanning provisioning record: %w", err)
	}

	rec.DeviceID = deviceID.String
	rec.FailedStage = failedStage.String
	rec.Error = errText.String
	if stagesJSON.Valid && stagesJSON.String != "" {
		var stages []Stage
		if json.Unmarshal([]byte(stagesJSON.String), &stages) == nil {
			rec.Stages = stages
		}
	}

	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("parsing provisioning timestamp %q: %w", createdAt, err)
	}
	rec.CreatedAt = t
	return rec, nil
}
