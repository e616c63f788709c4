package store

import (
	"context"

	"github.com/randalmurphal/tpm/internal/db/driver"
)

// Info describes the open database.
type Info struct {
	// Path is the SQLite file. Empty for other dialects, whose DSN may
	// carry credentials.
	Path          string `json:"path,omitempty"`
	Dialect       string `json:"dialect"`
	SchemaVersion int    `json:"schema_version"`
	JournalMode   string `json:"journal_mode,omitempty"`
	Counts        Counts `json:"counts"`
}

// Info reports the database location, schema version and row counts.
func (s *Store) Info(ctx context.Context) (*Info, error) {
	info := &Info{Dialect: string(s.db.Dialect())}
	if s.db.Dialect() == driver.DialectSQLite {
		info.Path = s.db.Path()
	}

	var err error
	if info.SchemaVersion, err = s.db.SchemaVersion(ctx); err != nil {
		return nil, err
	}
	if info.JournalMode, err = s.db.JournalMode(ctx); err != nil {
		return nil, err
	}
	if info.Counts, err = s.Counts(ctx); err != nil {
		return nil, err
	}
	return info, nil
}
