package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var createIntakeLogsSQL = []string{`
CREATE TABLE IF NOT EXISTS intake_logs (
	id             TEXT    NOT NULL PRIMARY KEY,
	patient_id     TEXT    NOT NULL,
	medication_id  TEXT    NOT NULL,
	scheduled_time INTEGER NOT NULL,
	taken_time     INTEGER,
	status         TEXT    NOT NULL,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	UNIQUE (medication_id, scheduled_time)
)`,
	`CREATE INDEX IF NOT EXISTS idx_intake_logs_scheduled_time ON intake_logs (scheduled_time)`,
	`CREATE INDEX IF NOT EXISTS idx_intake_logs_patient_id ON intake_logs (patient_id, scheduled_time)`,
}

// The conflict clause makes the natural key the arbiter: concurrent inserts
// for one occurrence collapse into a single row that keeps the first id.
const upsertIntakeSQL = `
INSERT INTO intake_logs (id, patient_id, medication_id, scheduled_time, taken_time, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (medication_id, scheduled_time) DO UPDATE SET
	patient_id = CASE WHEN excluded.patient_id = ? THEN intake_logs.patient_id ELSE excluded.patient_id END,
	taken_time = COALESCE(excluded.taken_time, intake_logs.taken_time),
	status     = excluded.status,
	updated_at = excluded.updated_at`

const selectIntakeColumns = `SELECT id, patient_id, medication_id, scheduled_time, taken_time, status, created_at, updated_at FROM intake_logs`

// SQLite intake log store
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (creating when needed) the intake log database at path
func NewSQLite(path string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db at path %s: %w", path, err)
	}

	// a single connection serializes writers instead of surfacing SQLITE_BUSY
	db.SetMaxOpenConns(1)

	for _, stmt := range createIntakeLogsSQL {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create intake_logs schema in %s: %w", path, err)
		}
	}

	return &SQLite{db: db, now: newOptions(opts).now}, nil
}

// Close the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIntake(row rowScanner) (*IntakeLog, error) {
	var (
		id, patientID, medicationID, status string
		scheduled, created, updated         int64
		taken                               sql.NullInt64
	)

	if err := row.Scan(&id, &patientID, &medicationID, &scheduled, &taken, &status, &created, &updated); err != nil {
		return nil, err
	}

	log := &IntakeLog{
		Status:        IntakeStatus(status),
		ScheduledTime: time.UnixMilli(scheduled).UTC(),
		CreatedAt:     time.UnixMilli(created).UTC(),
		UpdatedAt:     time.UnixMilli(updated).UTC(),
	}

	var err error
	if log.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad intake id %q: %w", id, err)
	}

	if log.IDUser, err = uuid.Parse(patientID); err != nil {
		return nil, fmt.Errorf("bad intake patient id %q: %w", patientID, err)
	}

	if log.MedicationID, err = uuid.Parse(medicationID); err != nil {
		return nil, fmt.Errorf("bad intake medication id %q: %w", medicationID, err)
	}

	if taken.Valid {
		takenTime := time.UnixMilli(taken.Int64).UTC()
		log.TakenTime = &takenTime
	}

	return log, nil
}

// FindIntake by natural key
func (s *SQLite) FindIntake(ctx context.Context, medicationID uuid.UUID, scheduledTime time.Time) (*IntakeLog, error) {
	row := s.db.QueryRowContext(ctx,
		selectIntakeColumns+` WHERE medication_id = ? AND scheduled_time = ?`,
		medicationID.String(), scheduledTime.UnixMilli(),
	)

	log, err := scanIntake(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}

		return nil, fmt.Errorf("failed to find intake for medication %s at %s: %w", medicationID, scheduledTime, err)
	}

	return log, nil
}

// UpsertIntake merges log into the row for its natural key
func (s *SQLite) UpsertIntake(ctx context.Context, log *IntakeLog) (*IntakeLog, error) {
	fresh := mergeIntake(nil, log, s.now())

	var taken sql.NullInt64
	if fresh.TakenTime != nil {
		taken = sql.NullInt64{Int64: fresh.TakenTime.UnixMilli(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, upsertIntakeSQL,
		fresh.ID.String(),
		fresh.IDUser.String(),
		fresh.MedicationID.String(),
		fresh.ScheduledTime.UnixMilli(),
		taken,
		string(fresh.Status),
		fresh.CreatedAt.UnixMilli(),
		fresh.UpdatedAt.UnixMilli(),
		uuid.Nil.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert intake for medication %s at %s: %w", log.MedicationID, log.ScheduledTime, err)
	}

	return s.FindIntake(ctx, fresh.MedicationID, fresh.ScheduledTime)
}

// ListIntakesBetween returns the records scheduled within [start, end]
func (s *SQLite) ListIntakesBetween(ctx context.Context, start, end time.Time) ([]*IntakeLog, error) {
	rows, err := s.db.QueryContext(ctx,
		selectIntakeColumns+` WHERE scheduled_time BETWEEN ? AND ? ORDER BY scheduled_time DESC`,
		start.UnixMilli(), end.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list intakes between %s and %s: %w", start, end, err)
	}
	defer rows.Close()

	var logs []*IntakeLog
	for rows.Next() {
		log, err := scanIntake(rows)
		if err != nil {
			return nil, err
		}

		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// ListIntakeHistory returns the records matching filter, latest scheduled first
func (s *SQLite) ListIntakeHistory(ctx context.Context, filter IntakeFilter) ([]*IntakeLog, error) {
	var (
		where []string
		args  []interface{}
	)

	if filter.PatientID != uuid.Nil {
		where = append(where, "patient_id = ?")
		args = append(args, filter.PatientID.String())
	}

	if filter.MedicationID != uuid.Nil {
		where = append(where, "medication_id = ?")
		args = append(args, filter.MedicationID.String())
	}

	query := selectIntakeColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY scheduled_time DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list intake history: %w", err)
	}
	defer rows.Close()

	var logs []*IntakeLog
	for rows.Next() {
		log, err := scanIntake(rows)
		if err != nil {
			return nil, err
		}

		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// DeleteIntakesForMedication removes the intake history of a medication
func (s *SQLite) DeleteIntakesForMedication(ctx context.Context, medicationID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM intake_logs WHERE medication_id = ?`, medicationID.String())
	if err != nil {
		return fmt.Errorf("failed to delete intakes for medication %s: %w", medicationID, err)
	}

	return nil
}
