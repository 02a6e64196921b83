package storage

import (
	"fmt"
	"log/slog"

	"github.com/geoarkit/placer/internal/config"
	"github.com/geoarkit/placer/internal/storage/memory"
	"github.com/geoarkit/placer/internal/storage/postgres"
	"github.com/geoarkit/placer/internal/storage/s3"
	sqlitestorage "github.com/geoarkit/placer/internal/storage/sqlite"
	"github.com/geoarkit/placer/internal/storage/websocket"
	"github.com/rs/zerolog"
)

// NewBackend creates an export backend based on configuration.
// Init is left to the caller.
func NewBackend(cfg config.StorageConfig, logger *slog.Logger, dbLog zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(cfg.Memory), nil
	case "sqlite":
		return sqlitestorage.New(cfg.SQLite, logger, dbLog), nil
	case "postgres":
		return postgres.New(cfg.Postgres, logger, dbLog), nil
	case "s3":
		return s3.New(cfg.S3, logger)
	case "websocket":
		if cfg.WebSocket.URL == "" {
			return nil, fmt.Errorf("websocket backend requires storage.websocket.url")
		}
		return websocket.New(cfg.WebSocket, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
