// Package postgres stores exports in a Postgres database through GORM.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/geoarkit/placer/internal/config"
	"github.com/geoarkit/placer/internal/database"
	gormstorage "github.com/geoarkit/placer/internal/storage/gorm"
	"github.com/rs/zerolog"
)

// Backend wraps the GORM backend with a Postgres connection.
type Backend struct {
	*gormstorage.Backend
	db  *database.Manager
	cfg config.PostgresConfig
}

// New creates a new Postgres storage backend. It connects in Init.
func New(cfg config.PostgresConfig, logger *slog.Logger, dbLog zerolog.Logger) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{Logger: logger}),
		db:      database.NewManager(dbLog),
		cfg:     cfg,
	}
}

// Init connects, validates the connection and migrates the schema.
func (b *Backend) Init() error {
	if err := b.db.ConnectPostgres(b.cfg); err != nil {
		return err
	}
	b.SetDB(b.db.DB)
	if err := b.Backend.Init(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return b.db.Close()
}
