package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	assert.Equal(t,
		filepath.Join("placerlogs", "placer.20260212_213836.log"),
		LogFilePath("placerlogs", "placer", sessionStart))

	// Local times are named in UTC.
	plus8 := time.FixedZone("SGT", 8*60*60)
	assert.Equal(t,
		filepath.Join("logs", "placer.20260212_213836.log"),
		LogFilePath("logs", "placer", sessionStart.In(plus8)))
}

func TestOpenLogFile_CreatesDirAndAppends(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "placerlogs")
	start := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	for _, line := range []string{"first\n", "second\n"} {
		f, err := OpenLogFile(dir, "placer", start)
		require.NoError(t, err)
		_, err = f.WriteString(line)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	data, err := os.ReadFile(LogFilePath(dir, "placer", start))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestOpenLogFile_DirIsAFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "placerlogs")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := OpenLogFile(blocker, "placer", time.Now())
	assert.Error(t, err)
}
