package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/geoarkit/placer/internal/config"
	"github.com/geoarkit/placer/internal/geo"
	"github.com/geoarkit/placer/internal/geolocation"
	"github.com/geoarkit/placer/internal/places"
	"github.com/geoarkit/placer/internal/storage"
	"github.com/rs/zerolog"
)

// initStorage creates and initializes the configured export backend.
func initStorage(cfg config.StorageConfig, logger *slog.Logger, zlog zerolog.Logger) (storage.Backend, error) {
	backend, err := storage.NewBackend(cfg, logger, zlog)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("initializing %s storage: %w", cfg.Type, err)
	}
	logger.Info("Storage backend initialized", "type", cfg.Type)
	return backend, nil
}

// loadRegistry builds the place registry. An explicit snapshot file wins,
// then the backend's latest export, then the built-in seed places.
func loadRegistry(ctx context.Context, snapshotPath string, backend storage.Backend, logger *slog.Logger) (*places.Registry, error) {
	if snapshotPath != "" {
		data, err := os.ReadFile(snapshotPath)
		if err != nil {
			return nil, fmt.Errorf("reading places snapshot: %w", err)
		}
		reg, err := places.NewRegistryFromSnapshot(data)
		if err != nil {
			return nil, fmt.Errorf("loading places snapshot %s: %w", snapshotPath, err)
		}
		logger.Info("Places loaded from snapshot", "path", snapshotPath, "count", reg.Len())
		return reg, nil
	}

	if loader, ok := backend.(storage.Loader); ok {
		ps, err := loader.LoadLatest(ctx)
		switch {
		case err == nil:
			logger.Info("Places restored from latest export", "count", len(ps))
			return places.NewRegistry(ps), nil
		case errors.Is(err, places.ErrNoSnapshot):
		default:
			logger.Warn("Failed to restore latest export, using seed places", "error", err)
		}
	}

	return places.NewRegistry(places.SeedPlaces()), nil
}

// newPositionProvider selects the geolocation provider. The feed is returned
// separately so operator devices can push fixes into it.
func newPositionProvider(cfg config.GeolocationConfig) (geolocation.Provider, *geolocation.Feed, error) {
	switch cfg.Provider {
	case "", "feed":
		feed := geolocation.NewFeed()
		return feed, feed, nil
	case "static":
		c, err := geo.ParseCoordinate(cfg.Static)
		if err != nil {
			return nil, nil, fmt.Errorf("geolocation.static: %w", err)
		}
		return geolocation.Static{Coordinate: c}, nil, nil
	case "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown geolocation provider: %s", cfg.Provider)
	}
}
