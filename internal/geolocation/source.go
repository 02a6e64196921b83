// Package geolocation wraps the device location provider behind a single
// best-effort request that either yields a coordinate or reports unavailable.
package geolocation

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/geoarkit/placer/internal/geo"
)

var (
	// ErrPositionUnavailable is the single outcome callers see for any failed request.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrUnsupported is returned by providers when the host has no location capability.
	ErrUnsupported = errors.New("geolocation not supported")
	// ErrPermissionDenied is returned when the operator refused location access.
	ErrPermissionDenied = errors.New("geolocation permission denied")
)

// Options are passed to the provider on every request.
type Options struct {
	Timeout      time.Duration
	MaximumAge   time.Duration
	HighAccuracy bool
}

// DefaultOptions waits up to 5s, accepts a cached fix up to 10s old and asks for high accuracy.
func DefaultOptions() Options {
	return Options{
		Timeout:      5 * time.Second,
		MaximumAge:   10 * time.Second,
		HighAccuracy: true,
	}
}

// Fix is a position reported by a provider.
type Fix struct {
	Coordinate geo.Coordinate `json:"coords"`
	Accuracy   float64        `json:"accuracy,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Provider is the host location subsystem.
type Provider interface {
	CurrentPosition(ctx context.Context, opts Options) (Fix, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, opts Options) (Fix, error)

// CurrentPosition calls f.
func (f ProviderFunc) CurrentPosition(ctx context.Context, opts Options) (Fix, error) {
	return f(ctx, opts)
}

// Source issues independent position requests against a provider. Concurrent
// requests are not de-duplicated.
type Source struct {
	provider Provider
	opts     Options
	logger   *slog.Logger

	inFlight atomic.Int64
}

// NewSource creates a Source. A nil provider means the capability is absent.
func NewSource(provider Provider, opts Options, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		provider: provider,
		opts:     opts,
		logger:   logger,
	}
}

// Options returns the request policy.
func (s *Source) Options() Options {
	return s.opts
}

// InFlight returns the number of outstanding provider calls.
func (s *Source) InFlight() int64 {
	return s.inFlight.Load()
}

// RequestPosition asks the provider for a fix, waiting at most the configured
// timeout. It never fails: every error collapses to ok == false.
func (s *Source) RequestPosition(ctx context.Context) (geo.Coordinate, bool) {
	c, err := s.Position(ctx)
	return c, err == nil
}

// Position is RequestPosition with the failure reported as ErrPositionUnavailable.
func (s *Source) Position(ctx context.Context) (geo.Coordinate, error) {
	if s.provider == nil {
		s.logger.Debug("Geolocation not available on this host")
		return geo.Coordinate{}, ErrPositionUnavailable
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	type result struct {
		fix Fix
		err error
	}
	// buffered so a provider that ignores ctx does not leak a blocked send
	done := make(chan result, 1)

	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Add(-1)
		fix, err := s.provider.CurrentPosition(ctx, s.opts)
		done <- result{fix: fix, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			s.logger.Debug("Error retrieving position", "error", r.err)
			return geo.Coordinate{}, ErrPositionUnavailable
		}
		return r.fix.Coordinate, nil
	case <-ctx.Done():
		s.logger.Debug("Position request timed out", "error", ctx.Err())
		return geo.Coordinate{}, ErrPositionUnavailable
	}
}
