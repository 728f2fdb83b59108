package eventlogger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

const eventColumns = `id, event_type, event_data, event_metadata, created_at`

type postgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *postgresStore {
	return &postgresStore{db: db}
}

func (s *postgresStore) Save(ctx context.Context, e Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encoding %s data: %w", e.Type, err)
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encoding %s metadata: %w", e.Type, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Type, data, metadata, e.CreatedAt,
	)
	return err
}

func (s *postgresStore) Find(ctx context.Context, q Query) ([]Event, error) {
	var (
		conds []string
		args  []any
	)
	if q.Type != "" {
		args = append(args, q.Type)
		conds = append(conds, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events`+where+
			fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		e              Event
		data, metadata []byte
	)
	if err := rows.Scan(&e.ID, &e.Type, &data, &metadata, &e.CreatedAt); err != nil {
		return e, err
	}
	// payloads are type specific; callers decode them on demand
	if len(data) > 0 && string(data) != "null" {
		e.Data = json.RawMessage(data)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return e, fmt.Errorf("decoding metadata of event %s: %w", e.ID, err)
		}
	}
	return e, nil
}
