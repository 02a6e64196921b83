package storage

import (
	"testing"

	"github.com/geoarkit/placer/internal/config"
	"github.com/geoarkit/placer/internal/storage/memory"
	"github.com/geoarkit/placer/internal/storage/postgres"
	"github.com/geoarkit/placer/internal/storage/s3"
	sqlitestorage "github.com/geoarkit/placer/internal/storage/sqlite"
	"github.com/geoarkit/placer/internal/storage/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check.
var _ Backend = (*websocket.Backend)(nil)

func TestNewBackend(t *testing.T) {
	cfg := config.StorageConfig{
		Memory:    config.MemoryConfig{OutputDir: t.TempDir()},
		SQLite:    config.SQLiteConfig{Path: "placer.db"},
		S3:        config.S3Config{Endpoint: "localhost:9000", Bucket: "placer"},
		WebSocket: config.WebSocketConfig{URL: "ws://localhost:5000/ingest"},
	}

	tests := []struct {
		typ  string
		want any
	}{
		{"", &memory.Backend{}},
		{"memory", &memory.Backend{}},
		{"sqlite", &sqlitestorage.Backend{}},
		{"postgres", &postgres.Backend{}},
		{"s3", &s3.Backend{}},
		{"websocket", &websocket.Backend{}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			cfg.Type = tt.typ
			b, err := NewBackend(cfg, nil, zerolog.Nop())
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}

func TestNewBackend_Errors(t *testing.T) {
	_, err := NewBackend(config.StorageConfig{Type: "cassandra"}, nil, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown storage type")

	_, err = NewBackend(config.StorageConfig{Type: "websocket"}, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewBackend_OptionalInterfaces(t *testing.T) {
	b, err := NewBackend(config.StorageConfig{Type: "memory"}, nil, zerolog.Nop())
	require.NoError(t, err)

	_, ok := b.(Loader)
	assert.True(t, ok)
	_, ok = b.(Locatable)
	assert.True(t, ok)

	b, err = NewBackend(config.StorageConfig{Type: "websocket", WebSocket: config.WebSocketConfig{URL: "ws://x"}}, nil, zerolog.Nop())
	require.NoError(t, err)
	_, ok = b.(Loader)
	assert.False(t, ok)
}
