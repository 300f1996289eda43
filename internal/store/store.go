// Package store provides the durable key/value slots the token store and
// the event cache are persisted in.
package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when a slot has never been written or was deleted.
var ErrNotFound = errors.New("store: slot not found")

// Store holds whole values under fixed keys. Values are only ever replaced
// as a whole, never partially updated.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
	DriverMemory = "memory"
)

// Open returns the store backend named by driver. path is a database file for
// sqlite and a directory for file; memory ignores it.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLite(path)
	case DriverFile:
		return NewDir(path)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
