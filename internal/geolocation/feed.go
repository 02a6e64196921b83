package geolocation

import (
	"context"
	"sync"
	"time"

	"github.com/geoarkit/placer/internal/geo"
)

// Feed is a provider backed by fixes pushed from the operator's device.
// A request is answered with the latest fix if it is no older than
// Options.MaximumAge, otherwise it waits for the next push.
type Feed struct {
	mu      sync.Mutex
	last    Fix
	hasFix  bool
	denied  bool
	updated chan struct{}

	now func() time.Time
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{
		updated: make(chan struct{}),
		now:     time.Now,
	}
}

// Push records a new fix and wakes waiting requests.
// A zero timestamp is replaced with the receive time.
func (f *Feed) Push(fix Fix) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fix.Timestamp.IsZero() {
		fix.Timestamp = f.now()
	}
	f.last = fix
	f.hasFix = true
	f.denied = false
	close(f.updated)
	f.updated = make(chan struct{})
}

// Deny marks location access as refused; pending and future requests fail
// until the next Push.
func (f *Feed) Deny() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied = true
	close(f.updated)
	f.updated = make(chan struct{})
}

// Latest returns the most recent fix regardless of age.
func (f *Feed) Latest() (Fix, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.hasFix
}

// CurrentPosition implements Provider.
func (f *Feed) CurrentPosition(ctx context.Context, opts Options) (Fix, error) {
	for {
		f.mu.Lock()
		if f.denied {
			f.mu.Unlock()
			return Fix{}, ErrPermissionDenied
		}
		if f.hasFix && f.now().Sub(f.last.Timestamp) <= opts.MaximumAge {
			fix := f.last
			f.mu.Unlock()
			return fix, nil
		}
		wait := f.updated
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return Fix{}, ctx.Err()
		case <-wait:
		}
	}
}

// Static always reports the same coordinate.
type Static struct {
	Coordinate geo.Coordinate
}

// CurrentPosition implements Provider.
func (s Static) CurrentPosition(ctx context.Context, opts Options) (Fix, error) {
	return Fix{Coordinate: s.Coordinate, Timestamp: time.Now()}, nil
}

// Unavailable is a provider for hosts without a location subsystem.
type Unavailable struct{}

// CurrentPosition implements Provider.
func (Unavailable) CurrentPosition(ctx context.Context, opts Options) (Fix, error) {
	return Fix{}, ErrUnsupported
}
