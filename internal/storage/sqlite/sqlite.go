// Package sqlitestorage stores exports in a SQLite file.
// It wraps the GORM backend via composition; the only SQLite-specific
// concern is opening the file-backed database.
package sqlitestorage

import (
	"fmt"
	"log/slog"

	"github.com/geoarkit/placer/internal/config"
	"github.com/geoarkit/placer/internal/database"
	gormstorage "github.com/geoarkit/placer/internal/storage/gorm"
	"github.com/rs/zerolog"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db  *database.Manager
	cfg config.SQLiteConfig
}

// New creates a new SQLite storage backend. The database is opened in Init.
func New(cfg config.SQLiteConfig, logger *slog.Logger, dbLog zerolog.Logger) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{Logger: logger}),
		db:      database.NewManager(dbLog),
		cfg:     cfg,
	}
}

// Init opens the database file and migrates the schema.
func (b *Backend) Init() error {
	if err := b.db.ConnectSQLite(b.cfg.Path); err != nil {
		return fmt.Errorf("failed to open SQLite DB: %w", err)
	}
	b.SetDB(b.db.DB)
	return b.Backend.Init()
}

// Close closes the database file.
func (b *Backend) Close() error {
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return b.db.Close()
}

// ExportedPath returns the database file path.
func (b *Backend) ExportedPath() string {
	return b.cfg.Path
}
