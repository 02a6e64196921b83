package sqlitestorage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/geoarkit/placer/internal/config"
	"github.com/geoarkit/placer/internal/places"
	"github.com/geoarkit/placer/internal/storage"
	sqlitestorage "github.com/geoarkit/placer/internal/storage/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend   = (*sqlitestorage.Backend)(nil)
	_ storage.Loader    = (*sqlitestorage.Backend)(nil)
	_ storage.Locatable = (*sqlitestorage.Backend)(nil)
)

func TestBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "placer.db")
	cfg := config.SQLiteConfig{Path: path}
	ctx := context.Background()

	b := sqlitestorage.New(cfg, nil, zerolog.Nop())
	require.NoError(t, b.Init())
	r := places.NewRegistry(places.SeedPlaces())
	_, err := r.SetVisibilityBound("Magnemite", places.BoundMax, 120)
	require.NoError(t, err)
	require.NoError(t, b.Export(ctx, r.Snapshot(time.Now())))
	require.NoError(t, b.Close())
	assert.FileExists(t, path)
	assert.Equal(t, path, b.ExportedPath())

	reopened := sqlitestorage.New(cfg, nil, zerolog.Nop())
	require.NoError(t, reopened.Init())
	defer reopened.Close()

	ps, err := reopened.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, r.All(), ps)
}
