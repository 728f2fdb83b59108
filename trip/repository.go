package trip

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/billbatista/fieldmiles/day"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

const tripColumns = `id, surveyor_id, trip_date,
        morning_reading_id, evening_reading_id, morning_reading, evening_reading,
        computed_distance, final_distance, is_approved, approved_by, approved_at, created_at`

func (r *repository) ReconcileDay(ctx context.Context, surveyorID uuid.UUID, d day.Day, fn func(*Trip) error) (*Trip, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// The unique (surveyor_id, trip_date) index turns a racing creation into
	// a no-op; the row lock below then serializes both writers.
	insert := `INSERT INTO bike_trips (id, surveyor_id, trip_date, created_at)
               VALUES ($1, $2, $3, $4)
               ON CONFLICT (surveyor_id, trip_date) DO NOTHING`
	fresh := New(surveyorID, d, time.Now())
	if _, err := tx.ExecContext(ctx, insert, fresh.ID, fresh.SurveyorID, fresh.Date, fresh.CreatedAt); err != nil {
		return nil, classify(err)
	}

	query := `SELECT ` + tripColumns + ` FROM bike_trips WHERE surveyor_id = $1 AND trip_date = $2 FOR UPDATE`
	t, err := scanTrip(tx.QueryRowContext(ctx, query, surveyorID, d))
	if err != nil {
		return nil, classify(err)
	}

	return r.mutate(ctx, tx, t, fn)
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, fn func(*Trip) error) (*Trip, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT ` + tripColumns + ` FROM bike_trips WHERE id = $1 FOR UPDATE`
	t, err := scanTrip(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, classify(err)
	}

	return r.mutate(ctx, tx, t, fn)
}

func (r *repository) mutate(ctx context.Context, tx *sql.Tx, t *Trip, fn func(*Trip) error) (*Trip, error) {
	if err := fn(t); err != nil {
		return nil, err
	}

	update := `UPDATE bike_trips SET
                   morning_reading_id = $2,
                   evening_reading_id = $3,
                   morning_reading = $4,
                   evening_reading = $5,
                   computed_distance = $6,
                   final_distance = $7,
                   is_approved = $8,
                   approved_by = $9,
                   approved_at = $10
               WHERE id = $1`
	_, err := tx.ExecContext(ctx, update,
		t.ID,
		t.MorningReadingID,
		t.EveningReadingID,
		t.MorningReading,
		t.EveningReading,
		t.ComputedDistance,
		t.FinalDistance,
		t.IsApproved,
		t.ApprovedBy,
		t.ApprovedAt,
	)
	if err != nil {
		return nil, classify(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return t, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM bike_trips WHERE id = $1`
	t, err := scanTrip(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *repository) List(ctx context.Context, q Query) ([]Trip, error) {
	var (
		where []string
		args  []any
	)
	if q.SurveyorID.Valid {
		args = append(args, q.SurveyorID.UUID)
		where = append(where, fmt.Sprintf("surveyor_id = $%d", len(args)))
	}
	if !q.From.IsZero() {
		args = append(args, q.From)
		where = append(where, fmt.Sprintf("trip_date >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		where = append(where, fmt.Sprintf("trip_date <= $%d", len(args)))
	}

	query := `SELECT ` + tripColumns + ` FROM bike_trips`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY trip_date DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := make([]Trip, 0)
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *t)
	}

	return trips, rows.Err()
}

// classify maps Postgres serialization and deadlock failures to
// ErrReconciliationConflict so the Service can retry them.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %w", ErrReconciliationConflict, err)
		}
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrip(row scanner) (*Trip, error) {
	var (
		t          Trip
		approvedAt sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.SurveyorID,
		&t.Date,
		&t.MorningReadingID,
		&t.EveningReadingID,
		&t.MorningReading,
		&t.EveningReading,
		&t.ComputedDistance,
		&t.FinalDistance,
		&t.IsApproved,
		&t.ApprovedBy,
		&approvedAt,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if approvedAt.Valid {
		at := approvedAt.Time.UTC()
		t.ApprovedAt = &at
	}
	return &t, nil
}
