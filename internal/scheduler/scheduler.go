// Package scheduler keeps one rendered entity per place and re-evaluates its
// visibility against the operator's position on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/geoarkit/placer/internal/geo"
	"github.com/geoarkit/placer/internal/places"
	"github.com/geoarkit/placer/internal/presentation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultInterval is the evaluation period of every place.
const DefaultInterval = time.Second

// ErrRendering is returned by Render when a render pass is already active.
var ErrRendering = errors.New("render pass already active")

// Positioner yields the operator's position or reports it unavailable.
type Positioner interface {
	RequestPosition(ctx context.Context) (geo.Coordinate, bool)
}

// Sample is one successful visibility decision.
type Sample struct {
	Place    string
	Player   geo.Coordinate
	Distance float64
	Visible  bool
	Time     time.Time
}

// Observer receives every successful sample. It is called with the
// scheduler's lock held and must not call back into the Scheduler.
type Observer interface {
	ObserveSample(ctx context.Context, s Sample)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, s Sample)

// ObserveSample calls f.
func (f ObserverFunc) ObserveSample(ctx context.Context, s Sample) {
	f(ctx, s)
}

// Entry is the state of one place in the current render pass.
type Entry struct {
	Place   places.Place
	ID      presentation.EntityID
	Visible bool
}

type entry struct {
	Entry
	alive bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithObserver attaches an observer for successful samples.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// Scheduler owns the entities and timers of the current render pass.
// Entries snapshot each place when the pass starts; registry edits take
// effect on the next Rebuild.
type Scheduler struct {
	registry  *places.Registry
	positions Positioner
	adapter   presentation.Adapter
	interval  time.Duration
	observer  Observer
	logger    *slog.Logger

	// lifecycle serializes Render, Stop and Rebuild.
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	loops     sync.WaitGroup

	// mu guards entries and orders visibility writes against teardown.
	mu      sync.RWMutex
	entries []*entry
	passes  int

	ticks       metric.Int64Counter
	unavailable metric.Int64Counter
	rebuilds    metric.Int64Counter
}

// New creates a Scheduler. Nothing is rendered until Render is called.
func New(registry *places.Registry, positions Positioner, adapter presentation.Adapter, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		registry:  registry,
		positions: positions,
		adapter:   adapter,
		interval:  DefaultInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	m := meter()
	var err error

	s.ticks, err = m.Int64Counter(
		"scheduler.ticks",
		metric.WithDescription("Visibility evaluations started"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	s.unavailable, err = m.Int64Counter(
		"scheduler.position.unavailable",
		metric.WithDescription("Evaluations skipped because no position was available"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating unavailable counter: %w", err)
	}

	s.rebuilds, err = m.Int64Counter(
		"scheduler.rebuilds",
		metric.WithDescription("Render passes torn down and recreated"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rebuilds counter: %w", err)
	}

	return s, nil
}

// Interval returns the evaluation period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Render creates a hidden entity for every place in the registry and starts
// one periodic evaluation per place. Position requests started by a tick
// use ctx, so they outlive a later Stop but not the caller's context.
func (s *Scheduler) Render(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.render(ctx)
}

// Stop cancels every timer of the current pass and destroys the entities it
// created. It is safe to call with nothing rendered.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stop()
}

// Rebuild tears down the current pass and renders again from the registry.
func (s *Scheduler) Rebuild(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.stop()
	s.rebuilds.Add(ctx, 1)
	s.logger.Info("Rebuilding scene")
	return s.render(ctx)
}

func (s *Scheduler) render(ctx context.Context) error {
	if s.cancel != nil {
		return ErrRendering
	}

	ps := s.registry.All()
	entries := make([]*entry, 0, len(ps))
	var errs []error

	s.mu.Lock()
	for _, p := range ps {
		id, err := s.adapter.CreateEntity(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("create entity for %q: %w", p.Name, err))
			continue
		}
		e := &entry{Entry: Entry{Place: p, ID: id}, alive: true}
		entries = append(entries, e)

		s.logger.Debug("Creating model",
			"place", p.Name,
			"lat", p.Location.Latitude,
			"lng", p.Location.Longitude,
			"min", p.VisibilityRange.Min,
			"max", p.VisibilityRange.Max)

		name := p.Name
		s.adapter.OnLoaded(id, func() {
			s.logger.Debug("Model loaded", "place", name)
		})
	}
	s.entries = entries
	s.passes++
	s.mu.Unlock()

	passCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	for _, e := range entries {
		s.loops.Add(1)
		go s.loop(passCtx, ctx, e)
	}

	return errors.Join(errs...)
}

func (s *Scheduler) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.loops.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.alive = false
		if err := s.adapter.DestroyEntity(e.ID); err != nil {
			s.logger.Warn("Failed to destroy entity", "place", e.Place.Name, "error", err)
		}
	}
	s.entries = nil
}

// loop ticks until the pass is cancelled. Each tick evaluates in its own
// goroutine; a slow position request never delays the next tick.
func (s *Scheduler) loop(passCtx, reqCtx context.Context, e *entry) {
	defer s.loops.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-passCtx.Done():
			return
		case <-ticker.C:
			go s.evaluate(reqCtx, e)
		}
	}
}

// Evaluate runs one evaluation of every live entry and waits for all of them.
func (s *Scheduler) Evaluate(ctx context.Context) {
	s.mu.RLock()
	entries := append([]*entry(nil), s.entries...)
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			s.evaluate(ctx, e)
		}(e)
	}
	wg.Wait()
}

func (s *Scheduler) evaluate(ctx context.Context, e *entry) {
	attrs := metric.WithAttributes(attribute.String("place", e.Place.Name))
	s.ticks.Add(ctx, 1, attrs)

	player, ok := s.positions.RequestPosition(ctx)
	if !ok {
		s.unavailable.Add(ctx, 1, attrs)
		s.logger.Debug("Player position could not be retrieved", "place", e.Place.Name)
		return
	}

	d := geo.Distance(player, e.Place.Location)
	visible := e.Place.VisibilityRange.Contains(d)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !e.alive {
		return
	}
	if err := s.adapter.SetVisible(e.ID, visible); err != nil {
		s.logger.Warn("Failed to set visibility", "place", e.Place.Name, "error", err)
		return
	}
	e.Visible = visible

	s.logger.Debug("Distance evaluated", "place", e.Place.Name, "distance", d, "visible", visible)

	// under mu so no sample of a torn-down pass reaches the observer after Stop
	if s.observer != nil {
		s.observer.ObserveSample(ctx, Sample{
			Place:    e.Place.Name,
			Player:   player,
			Distance: d,
			Visible:  visible,
			Time:     time.Now(),
		})
	}
}

// Visible reports the last applied visibility of the named place in the
// current pass.
func (s *Scheduler) Visible(name string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Place.Name == name {
			return e.Visible, true
		}
	}
	return false, false
}

// Entries returns the entries of the current pass in registry order.
func (s *Scheduler) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Entry
	}
	return out
}

// Passes returns how many render passes have started.
func (s *Scheduler) Passes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passes
}

// Running reports whether a render pass is active.
func (s *Scheduler) Running() bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.cancel != nil
}
