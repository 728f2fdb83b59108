package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/billbatista/fieldmiles/config"
	"github.com/billbatista/fieldmiles/eventlogger"
	"github.com/billbatista/fieldmiles/meter"
	"github.com/billbatista/fieldmiles/session"
	"github.com/billbatista/fieldmiles/storage"
	"github.com/billbatista/fieldmiles/trip"
	"github.com/billbatista/fieldmiles/user"
	bolt "go.etcd.io/bbolt"
)

// backend groups the repositories of one storage driver.
type backend struct {
	users    user.Repository
	sessions session.Repository
	readings meter.Repository
	trips    trip.Store
	events   eventlogger.EventLogger
	close    func() error
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := storage.OpenPostgres(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		return postgresBackend(db, cfg), nil
	case config.DriverBolt:
		db, err := storage.OpenBolt(cfg.Storage.BoltPath)
		if err != nil {
			return nil, err
		}
		b, err := boltBackend(db, cfg)
		if err != nil {
			db.Close()
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func postgresBackend(db *sql.DB, cfg config.Config) *backend {
	return &backend{
		users:    user.NewRepository(db),
		sessions: session.NewRepository(db, cfg.Auth.SessionTTL),
		readings: meter.NewRepository(db),
		trips:    trip.NewRepository(db),
		events:   eventlogger.NewPostgresStore(db),
		close:    db.Close,
	}
}

func boltBackend(db *bolt.DB, cfg config.Config) (*backend, error) {
	users, err := user.NewBoltRepository(db)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewBoltRepository(db, cfg.Auth.SessionTTL)
	if err != nil {
		return nil, err
	}
	readings, err := meter.NewBoltRepository(db)
	if err != nil {
		return nil, err
	}
	trips, err := trip.NewBoltStore(db)
	if err != nil {
		return nil, err
	}
	events, err := eventlogger.NewBoltEventLogger(db)
	if err != nil {
		return nil, err
	}
	return &backend{
		users:    users,
		sessions: sessions,
		readings: readings,
		trips:    trips,
		events:   events,
		close:    db.Close,
	}, nil
}
