package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketSessions = []byte("sessions")

// boltRepository keys sessions by token digest.
type boltRepository struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

func NewBoltRepository(db *bolt.DB, ttl time.Duration) (*boltRepository, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSessions); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketSessions, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &boltRepository{db: db, ttl: ttl, now: time.Now}, nil
}

func (r *boltRepository) Create(ctx context.Context, userID uuid.UUID) (*Session, error) {
	session, err := newSession(userID, r.ttl, r.now())
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	err = r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		err := deleteWhere(b, func(s *Session) bool {
			return s.UserID == userID && s.expired(session.CreatedAt)
		})
		if err != nil {
			return err
		}
		return b.Put([]byte(hashToken(session.Token)), data)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *boltRepository) GetByToken(ctx context.Context, token string) (*Session, error) {
	key := []byte(hashToken(token))
	session := Session{Token: token}
	err := r.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get(key)
		if data == nil {
			return ErrInvalidSession
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}

	if session.expired(r.now()) {
		err := r.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucketSessions).Delete(key)
		})
		if err != nil {
			return nil, fmt.Errorf("%w (cleanup failed: %v)", ErrExpiredSession, err)
		}
		return nil, ErrExpiredSession
	}
	return &session, nil
}

func (r *boltRepository) Delete(ctx context.Context, token string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(hashToken(token)))
	})
}

func (r *boltRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return deleteWhere(tx.Bucket(bucketSessions), func(s *Session) bool {
			return s.UserID == userID
		})
	})
}

// deleteWhere collects matching keys first; bbolt cursors must not be
// mutated during ForEach.
func deleteWhere(b *bolt.Bucket, match func(*Session) bool) error {
	var keys [][]byte
	err := b.ForEach(func(k, v []byte) error {
		var s Session
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		if match(&s) {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
