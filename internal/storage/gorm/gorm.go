// Package gormstorage persists exported snapshots through GORM. The sqlite
// and postgres backends wrap it with their own connection handling.
package gormstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geoarkit/placer/internal/geo"
	"github.com/geoarkit/placer/internal/places"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

// Backend stores every export as an ExportRecord with its PlaceRecords.
type Backend struct {
	deps    Dependencies
	lastID  uint
	dbReady bool
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{deps: deps}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// SetDB injects a connection opened after construction.
func (b *Backend) SetDB(db *gorm.DB) {
	b.deps.DB = db
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("gorm backend: no database")
	}
	if err := b.deps.DB.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	b.dbReady = true
	return nil
}

// Close is a no-op; the connection belongs to the caller.
func (b *Backend) Close() error {
	return nil
}

// Export writes the snapshot and its places in one transaction.
func (b *Backend) Export(ctx context.Context, snap places.Snapshot) error {
	if !b.dbReady {
		return fmt.Errorf("gorm backend: not initialized")
	}

	doc, err := snap.Document()
	if err != nil {
		return err
	}
	bounds, err := json.Marshal(snap.SavedBounds)
	if err != nil {
		return fmt.Errorf("marshal saved bounds: %w", err)
	}

	record := ExportRecord{
		ExportedAt:  snap.ExportedAt.UTC(),
		PlaceCount:  len(snap.Places),
		Document:    datatypes.JSON(doc),
		SavedBounds: datatypes.JSON(bounds),
		Places:      make([]PlaceRecord, 0, len(snap.Places)),
	}
	for i, p := range snap.Places {
		anchor, err := geo.Point3857(p.Location)
		if err != nil {
			return fmt.Errorf("anchor of %s: %w", p.Name, err)
		}
		record.Places = append(record.Places, PlaceRecord{
			Position:  i,
			Name:      p.Name,
			FilePath:  p.FilePath,
			Latitude:  p.Location.Latitude,
			Longitude: p.Location.Longitude,
			Anchor:    anchor,
			Min:       p.VisibilityRange.Min,
			Max:       p.VisibilityRange.Max,
		})
	}

	err = b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&record).Error
	})
	if err != nil {
		return fmt.Errorf("failed to store export: %w", err)
	}

	b.lastID = record.ID
	b.deps.Logger.Debug("Stored export", "id", record.ID, "places", record.PlaceCount)
	return nil
}

// LoadLatest returns the places of the newest export.
func (b *Backend) LoadLatest(ctx context.Context) ([]places.Place, error) {
	if !b.dbReady {
		return nil, fmt.Errorf("gorm backend: not initialized")
	}

	var record ExportRecord
	err := b.deps.DB.WithContext(ctx).Order("id desc").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, places.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	return places.Load([]byte(record.Document))
}

// History returns the place records of every export of the named place,
// newest first.
func (b *Backend) History(ctx context.Context, name string) ([]PlaceRecord, error) {
	var out []PlaceRecord
	err := b.deps.DB.WithContext(ctx).
		Where("name = ?", name).
		Order("export_id desc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read history of %q: %w", name, err)
	}
	return out, nil
}

// ExportedPath returns a reference to the last stored export.
func (b *Backend) ExportedPath() string {
	if b.lastID == 0 {
		return ""
	}
	return fmt.Sprintf("exports/%d", b.lastID)
}
