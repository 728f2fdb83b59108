package user

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketUsers        = []byte("users")
	bucketUsersByEmail = []byte("users_by_email")
)

// userRecord keeps the password hash that User hides from JSON.
type userRecord struct {
	User
	PasswordHash string `json:"password_hash"`
}

type boltRepository struct {
	db *bolt.DB
}

func NewBoltRepository(db *bolt.DB) (*boltRepository, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketUsers, bucketUsersByEmail} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &boltRepository{db: db}, nil
}

func (r *boltRepository) Register(ctx context.Context, reg Registration) (*User, error) {
	user, err := newUser(reg)
	if err != nil {
		return nil, err
	}

	err = r.db.Update(func(tx *bolt.Tx) error {
		byEmail := tx.Bucket(bucketUsersByEmail)
		emailKey := []byte(strings.ToLower(user.Email))
		if byEmail.Get(emailKey) != nil {
			return ErrEmailExists
		}
		if err := putUser(tx, user); err != nil {
			return err
		}
		return byEmail.Put(emailKey, []byte(user.ID.String()))
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *boltRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	var user *User
	err := r.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketUsersByEmail).Get([]byte(strings.ToLower(email)))
		if id == nil {
			return nil
		}
		var err error
		user, err = getUser(tx, id)
		return err
	})
	return user, err
}

func (r *boltRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var user *User
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		user, err = getUser(tx, []byte(id.String()))
		return err
	})
	return user, err
}

func (r *boltRepository) VerifyPassword(hashedPassword, password string) error {
	return verifyPassword(hashedPassword, password)
}

func (r *boltRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		user, err := getUser(tx, []byte(id.String()))
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		user.Active = active
		return putUser(tx, user)
	})
}

func (r *boltRepository) Profiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Profile, error) {
	profiles := make(map[uuid.UUID]Profile, len(ids))
	err := r.db.View(func(tx *bolt.Tx) error {
		for _, id := range ids {
			user, err := getUser(tx, []byte(id.String()))
			if err != nil {
				return err
			}
			if user != nil {
				profiles[id] = user.Profile()
			}
		}
		return nil
	})
	return profiles, err
}

func getUser(tx *bolt.Tx, id []byte) (*User, error) {
	data := tx.Bucket(bucketUsers).Get(id)
	if data == nil {
		return nil, nil
	}
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	user := rec.User
	user.PasswordHash = rec.PasswordHash
	return &user, nil
}

func putUser(tx *bolt.Tx, user *User) error {
	data, err := json.Marshal(userRecord{User: *user, PasswordHash: user.PasswordHash})
	if err != nil {
		return err
	}
	return tx.Bucket(bucketUsers).Put([]byte(user.ID.String()), data)
}
