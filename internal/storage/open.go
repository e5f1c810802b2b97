package storage

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
	DriverPebble   = "pebble"
)

// Options selects and configures a backend.
type Options struct {
	Driver     string
	Database   DatabaseConfig
	BoltPath   string
	PebblePath string
}

// Open returns the backend named by opts.Driver.
func Open(opts Options, logger *zap.Logger) (Storage, error) {
	switch opts.Driver {
	case DriverMemory:
		logger.Info("Using in-memory storage")
		return NewMemoryStorage(), nil
	case DriverPostgres:
		logger.Info("Using PostgreSQL storage")
		s, err := NewPostgresStorage(opts.Database, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverBolt:
		if opts.BoltPath == "" {
			return nil, errors.New("bolt storage needs a file path")
		}
		s, err := OpenBoltStorage(opts.BoltPath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPebble:
		if opts.PebblePath == "" {
			return nil, errors.New("pebble storage needs a directory")
		}
		s, err := OpenPebbleStorage(opts.PebblePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
}
