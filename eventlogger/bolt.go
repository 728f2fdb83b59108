package eventlogger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var bucketEvents = []byte("events")

type storedEvent struct {
	Event
	Data json.RawMessage `json:"event_data,omitempty"`
}

type boltEventLogger struct {
	db *bolt.DB
}

func NewBoltEventLogger(db *bolt.DB) (*boltEventLogger, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating events bucket: %w", err)
	}
	return &boltEventLogger{db: db}, nil
}

const keyLayout = "20060102T150405.000000000"

// eventKey puts created_at first so a cursor walks events in time order.
func eventKey(e Event) []byte {
	return []byte(e.CreatedAt.UTC().Format(keyLayout) + "/" + e.ID.String())
}

func (el *boltEventLogger) Save(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", e.Type, err)
	}
	return el.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEvents).Put(eventKey(e), data)
	})
}

// Find walks the bucket backwards from the newest key, stopping once it
// passes Since or has collected Limit matches.
func (el *boltEventLogger) Find(ctx context.Context, q Query) ([]Event, error) {
	var since []byte
	if !q.Since.IsZero() {
		since = []byte(q.Since.UTC().Format(keyLayout))
	}
	limit := q.limit()

	events := make([]Event, 0)
	err := el.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Last(); k != nil && len(events) < limit; k, v = c.Prev() {
			if since != nil && bytes.Compare(k, since) < 0 {
				break
			}
			var se storedEvent
			if err := json.Unmarshal(v, &se); err != nil {
				return fmt.Errorf("decoding event %s: %w", k, err)
			}
			e := se.Event
			if len(se.Data) > 0 {
				e.Data = se.Data
			}
			if q.matches(e) {
				events = append(events, e)
			}
		}
		return nil
	})
	return events, err
}
