package meter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/billbatista/fieldmiles/day"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *repository {
	return &repository{db: db}
}

const readingColumns = `id, surveyor_id, reading_day, session, reading, photo_ref, captured_at`

func (r *repository) Insert(ctx context.Context, m MeterReading) error {
	query := `INSERT INTO meter_readings (` + readingColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.SurveyorID,
		m.Day,
		m.Session,
		m.Reading,
		m.PhotoRef,
		m.CapturedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateSubmission
		}
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

func (r *repository) Exists(ctx context.Context, surveyorID uuid.UUID, d day.Day, s Session) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM meter_readings WHERE surveyor_id = $1 AND reading_day = $2 AND session = $3)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, surveyorID, d, s).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*MeterReading, error) {
	query := `SELECT ` + readingColumns + ` FROM meter_readings WHERE id = $1`
	m, err := scanReading(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrReadingNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *repository) ListForDay(ctx context.Context, surveyorID uuid.UUID, d day.Day) ([]MeterReading, error) {
	query := `SELECT ` + readingColumns + `
              FROM meter_readings
              WHERE surveyor_id = $1 AND reading_day = $2
              ORDER BY session DESC`

	rows, err := r.db.QueryContext(ctx, query, surveyorID, d)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []MeterReading
	for rows.Next() {
		m, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, *m)
	}

	return readings, rows.Err()
}

func (r *repository) UpdateValue(ctx context.Context, id uuid.UUID, value decimal.NullDecimal) (*MeterReading, error) {
	query := `UPDATE meter_readings SET reading = $1 WHERE id = $2 RETURNING ` + readingColumns
	m, err := scanReading(r.db.QueryRowContext(ctx, query, value, id))
	if err == sql.ErrNoRows {
		return nil, ErrReadingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating reading: %w", err)
	}
	return m, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM meter_readings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrReadingNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReading(row scanner) (*MeterReading, error) {
	var m MeterReading
	err := row.Scan(
		&m.ID,
		&m.SurveyorID,
		&m.Day,
		&m.Session,
		&m.Reading,
		&m.PhotoRef,
		&m.CapturedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
