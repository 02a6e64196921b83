package database

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probe struct {
	ID   uint `gorm:"primarykey"`
	Name string
}

func TestManager_ConnectSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "placer.db")
	m := NewManager(zerolog.Nop())

	require.NoError(t, m.ConnectSQLite(path))
	defer m.Close()

	require.NoError(t, m.Migrate(&probe{}))
	require.NoError(t, m.DB.Create(&probe{Name: "Magnemite"}).Error)

	var got probe
	require.NoError(t, m.DB.First(&got).Error)
	assert.Equal(t, "Magnemite", got.Name)
	assert.FileExists(t, path)
}

func TestManager_ConnectSQLiteMemory(t *testing.T) {
	m := NewManager(zerolog.Nop())
	require.NoError(t, m.ConnectSQLite(""))
	defer m.Close()

	require.NoError(t, m.Migrate(&probe{}))
	assert.True(t, m.DB.Migrator().HasTable(&probe{}))
}

func TestManager_MigrateWithoutConnection(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.Error(t, m.Migrate(&probe{}))
	assert.NoError(t, m.Close())
}
