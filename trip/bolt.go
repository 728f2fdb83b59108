package trip

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/billbatista/fieldmiles/day"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketTrips      = []byte("bike_trips")
	bucketTripsByDay = []byte("bike_trips_by_day")
)

// boltStore relies on bbolt running one read-write transaction at a time,
// which serializes every ReconcileDay and Update call.
type boltStore struct {
	db *bolt.DB
}

func NewBoltStore(db *bolt.DB) (*boltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketTrips, bucketTripsByDay} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func dayKey(surveyorID uuid.UUID, d day.Day) []byte {
	return []byte(surveyorID.String() + "/" + d.String())
}

func (s *boltStore) ReconcileDay(ctx context.Context, surveyorID uuid.UUID, d day.Day, fn func(*Trip) error) (*Trip, error) {
	var result *Trip
	err := s.db.Update(func(tx *bolt.Tx) error {
		byDay := tx.Bucket(bucketTripsByDay)
		key := dayKey(surveyorID, d)

		var t *Trip
		if id := byDay.Get(key); id != nil {
			var err error
			if t, err = getTrip(tx, id); err != nil {
				return err
			}
		} else {
			t = New(surveyorID, d, time.Now())
			if err := byDay.Put(key, []byte(t.ID.String())); err != nil {
				return err
			}
		}

		if err := fn(t); err != nil {
			return err
		}
		result = t
		return putTrip(tx, t)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *boltStore) Update(ctx context.Context, id uuid.UUID, fn func(*Trip) error) (*Trip, error) {
	var result *Trip
	err := s.db.Update(func(tx *bolt.Tx) error {
		t, err := getTrip(tx, []byte(id.String()))
		if err != nil {
			return err
		}
		if err := fn(t); err != nil {
			return err
		}
		result = t
		return putTrip(tx, t)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *boltStore) Get(ctx context.Context, id uuid.UUID) (*Trip, error) {
	var t *Trip
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		t, err = getTrip(tx, []byte(id.String()))
		return err
	})
	return t, err
}

func (s *boltStore) List(ctx context.Context, q Query) ([]Trip, error) {
	trips := make([]Trip, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTrips).ForEach(func(k, v []byte) error {
			var t Trip
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if q.Matches(t) {
				trips = append(trips, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(trips, func(i, j int) bool {
		return trips[i].Date.After(trips[j].Date)
	})
	return trips, nil
}

func getTrip(tx *bolt.Tx, id []byte) (*Trip, error) {
	data := tx.Bucket(bucketTrips).Get(id)
	if data == nil {
		return nil, ErrTripNotFound
	}
	var t Trip
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func putTrip(tx *bolt.Tx, t *Trip) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketTrips).Put([]byte(t.ID.String()), data)
}
