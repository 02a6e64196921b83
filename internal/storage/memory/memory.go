// Package memory exports snapshots as JSON files on local disk.
package memory

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/geoarkit/placer/internal/config"
	"github.com/geoarkit/placer/internal/places"
)

// FileName is the export file written in the output directory.
const FileName = "model_positions.json"

// Backend keeps the last exported snapshot in memory and writes it to disk.
type Backend struct {
	cfg config.MemoryConfig

	mu             sync.RWMutex
	last           *places.Snapshot
	lastExportPath string
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init ensures the output directory exists
func (b *Backend) Init() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// Export writes the snapshot document to the output directory, replacing the
// previous export. Without an output directory the snapshot is only kept in
// memory.
func (b *Backend) Export(ctx context.Context, snap places.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = &snap
	if b.cfg.OutputDir == "" {
		return nil
	}

	data, err := snap.Document()
	if err != nil {
		return err
	}

	path := b.path()
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		err = writeGzip(path, data)
	} else {
		err = os.WriteFile(path, data, 0644)
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	b.lastExportPath = path
	return nil
}

// LoadLatest returns the places of the most recent export, reading the file
// on disk when nothing was exported in this process.
func (b *Backend) LoadLatest(ctx context.Context) ([]places.Place, error) {
	b.mu.RLock()
	last := b.last
	b.mu.RUnlock()
	if last != nil {
		out := make([]places.Place, len(last.Places))
		copy(out, last.Places)
		return out, nil
	}
	if b.cfg.OutputDir == "" {
		return nil, places.ErrNoSnapshot
	}

	data, err := readFile(b.path(), b.cfg.CompressOutput)
	if errors.Is(err, os.ErrNotExist) {
		return nil, places.ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return places.Load(data)
}

// ExportedPath returns the path of the last written file, or "" if none.
func (b *Backend) ExportedPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// Last returns the last exported snapshot.
func (b *Backend) Last() (places.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return places.Snapshot{}, false
	}
	return *b.last, true
}

func (b *Backend) path() string {
	name := FileName
	if b.cfg.CompressOutput {
		name += ".gz"
	}
	return filepath.Join(b.cfg.OutputDir, name)
}

func writeGzip(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

func readFile(path string, compressed bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil || !compressed {
		return data, err
	}
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip %s: %w", path, err)
	}
	defer gr.Close()
	return io.ReadAll(gr)
}
