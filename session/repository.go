package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type postgresRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewRepository(db *sql.DB, ttl time.Duration) *postgresRepository {
	return &postgresRepository{db: db, ttl: ttl, now: time.Now}
}

// Create stores a new session and clears the user's expired ones in the
// same transaction.
func (r *postgresRepository) Create(ctx context.Context, userID uuid.UUID) (*Session, error) {
	s, err := newSession(userID, r.ttl, r.now())
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND expires_at <= $2`,
		userID, s.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("purging expired sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, hashToken(s.Token), s.ExpiresAt, s.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *postgresRepository) GetByToken(ctx context.Context, token string) (*Session, error) {
	s := Session{Token: token}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at FROM sessions WHERE token_hash = $1`,
		hashToken(token),
	).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	if s.expired(r.now()) {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, s.ID); err != nil {
			return nil, fmt.Errorf("%w (cleanup failed: %v)", ErrExpiredSession, err)
		}
		return nil, ErrExpiredSession
	}
	return &s, nil
}

func (r *postgresRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, hashToken(token))
	return err
}

func (r *postgresRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}
