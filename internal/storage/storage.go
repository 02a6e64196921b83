// Package storage defines the sinks a registry snapshot is exported to.
package storage

import (
	"context"

	"github.com/geoarkit/placer/internal/places"
)

// Backend is the interface all export sinks must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Export persists one snapshot of the registry.
	Export(ctx context.Context, snap places.Snapshot) error
}

// Loader is an optional interface for backends that can restore the most
// recent export, e.g. to seed the registry on startup. It returns
// places.ErrNoSnapshot when nothing was exported yet.
type Loader interface {
	LoadLatest(ctx context.Context) ([]places.Place, error)
}

// Locatable is an optional interface for backends that write to an
// addressable location (file path or object key).
type Locatable interface {
	ExportedPath() string
}
