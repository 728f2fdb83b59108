package meter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/billbatista/fieldmiles/day"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketReadings = []byte("meter_readings")
	// bucketSlots maps surveyor/day/session to a reading id and plays the
	// role of the unique index.
	bucketSlots = []byte("meter_slots")
)

type boltRepository struct {
	db *bolt.DB
}

func NewBoltRepository(db *bolt.DB) (*boltRepository, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketReadings, bucketSlots} {
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

func dayPrefix(surveyorID uuid.UUID, d day.Day) []byte {
	return []byte(surveyorID.String() + "/" + d.String() + "/")
}

func slotKey(surveyorID uuid.UUID, d day.Day, s Session) []byte {
	return append(dayPrefix(surveyorID, d), string(s)...)
}

func (r *boltRepository) Insert(ctx context.Context, m MeterReading) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		slots := tx.Bucket(bucketSlots)
		key := slotKey(m.SurveyorID, m.Day, m.Session)
		if slots.Get(key) != nil {
			return ErrDuplicateSubmission
		}
		if err := slots.Put(key, []byte(m.ID.String())); err != nil {
			return err
		}
		return tx.Bucket(bucketReadings).Put([]byte(m.ID.String()), data)
	})
}

func (r *boltRepository) Exists(ctx context.Context, surveyorID uuid.UUID, d day.Day, s Session) (bool, error) {
	var exists bool
	err := r.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketSlots).Get(slotKey(surveyorID, d, s)) != nil
		return nil
	})
	return exists, err
}

func (r *boltRepository) GetByID(ctx context.Context, id uuid.UUID) (*MeterReading, error) {
	var m *MeterReading
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		m, err = getReading(tx, []byte(id.String()))
		return err
	})
	return m, err
}

func (r *boltRepository) ListForDay(ctx context.Context, surveyorID uuid.UUID, d day.Day) ([]MeterReading, error) {
	var readings []MeterReading
	err := r.db.View(func(tx *bolt.Tx) error {
		prefix := dayPrefix(surveyorID, d)
		c := tx.Bucket(bucketSlots).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			m, err := getReading(tx, v)
			if err != nil {
				return err
			}
			readings = append(readings, *m)
		}
		return nil
	})
	return readings, err
}

func (r *boltRepository) UpdateValue(ctx context.Context, id uuid.UUID, value decimal.NullDecimal) (*MeterReading, error) {
	var m *MeterReading
	err := r.db.Update(func(tx *bolt.Tx) error {
		var err error
		m, err = getReading(tx, []byte(id.String()))
		if err != nil {
			return err
		}
		m.Reading = value
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketReadings).Put([]byte(id.String()), data)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *boltRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		m, err := getReading(tx, []byte(id.String()))
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketSlots).Delete(slotKey(m.SurveyorID, m.Day, m.Session)); err != nil {
			return err
		}
		return tx.Bucket(bucketReadings).Delete([]byte(id.String()))
	})
}

func getReading(tx *bolt.Tx, id []byte) (*MeterReading, error) {
	data := tx.Bucket(bucketReadings).Get(id)
	if data == nil {
		return nil, ErrReadingNotFound
	}
	var m MeterReading
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
