// Package capture implements the operator's place-anchoring workflow:
// select a place, sample the device position, then commit it as the anchor.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/geoarkit/placer/internal/geo"
	"github.com/geoarkit/placer/internal/places"
)

var (
	// ErrNoSelection is returned by actions that need a selected place.
	ErrNoSelection = errors.New("no place selected")
	// ErrNothingPending is returned by Commit when no capture is waiting.
	ErrNothingPending = errors.New("no captured position to commit")
	// ErrCaptureFailed is returned when the position source had no fix.
	ErrCaptureFailed = errors.New("unable to capture position")
)

// State is the session's logical state.
type State int

const (
	Idle State = iota
	Selected
	Captured
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selected:
		return "selected"
	case Captured:
		return "captured"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Positioner yields the operator's position or reports it unavailable.
type Positioner interface {
	RequestPosition(ctx context.Context) (geo.Coordinate, bool)
}

// Selection describes the newly selected place for display.
type Selection struct {
	Place places.Place
	// Committed reports whether the anchor was committed this session.
	Committed bool
	Saved     places.VisibilityRange
	HasSaved  bool
}

// Session is the capture workflow state. Only the registry is mutated; a
// rebuild is needed for commits to reach live visibility.
type Session struct {
	registry  *places.Registry
	positions Positioner

	mu        sync.Mutex
	selected  string
	pending   *geo.Coordinate
	committed map[string]geo.Coordinate
	// gen increments on every Select so a capture that resolves after a
	// reselect is dropped.
	gen uint64
}

// NewSession creates an idle session.
func NewSession(registry *places.Registry, positions Positioner) *Session {
	return &Session{
		registry:  registry,
		positions: positions,
		committed: make(map[string]geo.Coordinate),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.selected == "":
		return Idle
	case s.pending != nil:
		return Captured
	default:
		return Selected
	}
}

// Selected returns the selected place name, or "" when idle.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Pending returns the uncommitted capture, if any.
func (s *Session) Pending() (geo.Coordinate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return geo.Coordinate{}, false
	}
	return *s.pending, true
}

// Select makes name the current selection and discards any pending capture.
func (s *Session) Select(name string) (Selection, error) {
	if name == "" {
		return Selection{}, ErrNoSelection
	}
	p, ok := s.registry.Find(name)
	if !ok {
		return Selection{}, fmt.Errorf("select %q: %w", name, places.ErrUnknownPlace)
	}

	s.mu.Lock()
	s.selected = name
	s.pending = nil
	s.gen++
	_, committed := s.committed[name]
	s.mu.Unlock()

	sel := Selection{Place: p, Committed: committed}
	sel.Saved, sel.HasSaved = s.registry.SavedBound(name)
	return sel, nil
}

// Capture samples the device position for the selected place. On failure the
// state is unchanged.
func (s *Session) Capture(ctx context.Context) (geo.Coordinate, error) {
	s.mu.Lock()
	name, gen := s.selected, s.gen
	s.mu.Unlock()
	if name == "" {
		return geo.Coordinate{}, ErrNoSelection
	}

	c, ok := s.positions.RequestPosition(ctx)
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("capture %q: %w", name, ErrCaptureFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return geo.Coordinate{}, fmt.Errorf("capture %q: selection changed to %q: %w", name, s.selected, ErrCaptureFailed)
	}
	s.pending = &c
	return c, nil
}

// Commit writes the pending capture into the registry as the selected
// place's anchor and returns to Selected.
func (s *Session) Commit() (places.Place, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return places.Place{}, ErrNoSelection
	}
	if s.pending == nil {
		return places.Place{}, ErrNothingPending
	}
	if err := s.registry.CommitAnchor(s.selected, *s.pending); err != nil {
		return places.Place{}, err
	}
	s.committed[s.selected] = *s.pending
	s.pending = nil

	p, _ := s.registry.Find(s.selected)
	return p, nil
}

// SetDistance edits one bound of the selected place's visibility range. The
// live record changes immediately.
func (s *Session) SetDistance(b places.Bound, value float64) (places.VisibilityRange, error) {
	name := s.Selected()
	if name == "" {
		return places.VisibilityRange{}, ErrNoSelection
	}
	return s.registry.SetVisibilityBound(name, b, value)
}

// SaveBounds snapshots the selected place's current range.
func (s *Session) SaveBounds() (places.VisibilityRange, error) {
	name := s.Selected()
	if name == "" {
		return places.VisibilityRange{}, ErrNoSelection
	}
	return s.registry.SaveBounds(name)
}

// Committed returns the anchors committed during this session.
func (s *Session) Committed() map[string]geo.Coordinate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]geo.Coordinate, len(s.committed))
	for k, v := range s.committed {
		out[k] = v
	}
	return out
}

// Ready reports whether every registered place has an anchor committed this
// session.
func (s *Session) Ready() bool {
	names := s.registry.Names()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(names) == 0 {
		return false
	}
	for _, n := range names {
		if _, ok := s.committed[n]; !ok {
			return false
		}
	}
	return true
}
