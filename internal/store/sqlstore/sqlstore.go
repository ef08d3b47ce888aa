// Package sqlstore implements checkpoint.Store, session.Store, and
// approval.Store over a single gorm.DB, selecting the dialector by the
// scheme of the configured storage.path_or_url: a file: URL, a path ending
// in .db, or an empty value (bankflow.db) opens github.com/glebarez/sqlite
// (pure Go, no cgo); a postgres:// or postgresql:// URL opens
// gorm.io/driver/postgres. Any other value is rejected.
package sqlstore

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store is the shared gorm-backed implementation of all three store
// interfaces.
type Store struct {
	db *gorm.DB
}

// Open selects a dialector from pathOrURL's scheme and migrates the schema.
func Open(pathOrURL string) (*Store, error) {
	dialector, err := dialectorFor(pathOrURL)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if err := db.AutoMigrate(&checkpointRecord{}, &sessionRecord{}, &approvalRecord{}); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func dialectorFor(pathOrURL string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(pathOrURL, "postgres://"), strings.HasPrefix(pathOrURL, "postgresql://"):
		return postgres.Open(pathOrURL), nil
	case strings.HasPrefix(pathOrURL, "file:"), strings.HasSuffix(pathOrURL, ".db"), pathOrURL == "":
		dsn := pathOrURL
		if dsn == "" {
			dsn = "bankflow.db"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("sqlstore: unrecognized storage.path_or_url %q", pathOrURL)
	}
}

// Close releases the underlying *sql.DB connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
