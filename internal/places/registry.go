package places

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/geoarkit/placer/internal/geo"
	geom "github.com/peterstace/simplefeatures/geom"
)

var (
	// ErrUnknownPlace is returned when a name is not in the registry.
	ErrUnknownPlace = errors.New("unknown place")
	// ErrInvalidRange is returned when a bound edit would break 0 <= min < max.
	ErrInvalidRange = errors.New("invalid visibility range")
	// ErrDuplicatePlace is returned when a snapshot repeats a name.
	ErrDuplicatePlace = errors.New("duplicate place name")
)

// Registry is the canonical, ordered list of places. Places are never removed;
// they change only through CommitAnchor and SetVisibilityBound.
type Registry struct {
	mu     sync.RWMutex
	places []Place
	index  map[string]int

	// saved holds the bounds snapshotted by SaveBounds, keyed by name.
	saved map[string]VisibilityRange
}

// NewRegistry creates a registry holding a copy of ps in order.
// Callers must not pass duplicate names.
func NewRegistry(ps []Place) *Registry {
	r := &Registry{
		places: make([]Place, len(ps)),
		index:  make(map[string]int, len(ps)),
		saved:  make(map[string]VisibilityRange),
	}
	copy(r.places, ps)
	for i, p := range r.places {
		r.index[p.Name] = i
	}
	return r
}

// NewRegistryFromSnapshot builds a registry from an exported snapshot.
func NewRegistryFromSnapshot(data []byte) (*Registry, error) {
	ps, err := Load(data)
	if err != nil {
		return nil, err
	}
	return NewRegistry(ps), nil
}

// All returns the places in insertion order.
func (r *Registry) All() []Place {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Place, len(r.places))
	copy(out, r.places)
	return out
}

// Names returns the place names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.places))
	for i, p := range r.places {
		names[i] = p.Name
	}
	return names
}

// Len returns the number of places.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.places)
}

// Find looks up a place by exact name.
func (r *Registry) Find(name string) (Place, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return Place{}, false
	}
	return r.places[i], true
}

// CommitAnchor overwrites the anchor of the named place.
func (r *Registry) CommitAnchor(name string, c geo.Coordinate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[name]
	if !ok {
		return fmt.Errorf("commit anchor for %q: %w", name, ErrUnknownPlace)
	}
	r.places[i].Location = c
	return nil
}

// SetVisibilityBound overwrites one bound of the named place's range and
// returns the resulting range. The range is left unchanged when the new value
// is negative or would make min >= max.
func (r *Registry) SetVisibilityBound(name string, b Bound, value float64) (VisibilityRange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[name]
	if !ok {
		return VisibilityRange{}, fmt.Errorf("set %s distance for %q: %w", b, name, ErrUnknownPlace)
	}
	current := r.places[i].VisibilityRange
	if b != BoundMin && b != BoundMax {
		return current, fmt.Errorf("set distance for %q: unknown bound %q: %w", name, b, ErrInvalidRange)
	}
	next := current.With(b, value)
	if value < 0 || !next.Valid() {
		return current, fmt.Errorf("set %s distance %v for %q (range [%v, %v]): %w",
			b, value, name, current.Min, current.Max, ErrInvalidRange)
	}
	r.places[i].VisibilityRange = next
	return next, nil
}

// SaveBounds snapshots the named place's current range into the saved-bounds map.
func (r *Registry) SaveBounds(name string) (VisibilityRange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[name]
	if !ok {
		return VisibilityRange{}, fmt.Errorf("save bounds for %q: %w", name, ErrUnknownPlace)
	}
	vr := r.places[i].VisibilityRange
	r.saved[name] = vr
	return vr, nil
}

// SavedBound returns the last saved range for name.
func (r *Registry) SavedBound(name string) (VisibilityRange, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vr, ok := r.saved[name]
	return vr, ok
}

// SavedBounds returns a copy of every saved range.
func (r *Registry) SavedBounds() map[string]VisibilityRange {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]VisibilityRange, len(r.saved))
	for k, v := range r.saved {
		out[k] = v
	}
	return out
}

// Snapshot is the registry state handed to export sinks.
type Snapshot struct {
	Places      []Place
	SavedBounds map[string]VisibilityRange
	ExportedAt  time.Time
}

// Document returns the export document for the snapshot's places.
func (s Snapshot) Document() ([]byte, error) {
	return Marshal(s.Places)
}

// Snapshot captures the places and saved bounds at time at.
func (r *Registry) Snapshot(at time.Time) Snapshot {
	return Snapshot{
		Places:      r.All(),
		SavedBounds: r.SavedBounds(),
		ExportedAt:  at,
	}
}

// Serialize returns the pretty-printed JSON snapshot of all places.
func (r *Registry) Serialize() ([]byte, error) {
	return Marshal(r.All())
}

// GeoJSON returns the places as a GeoJSON feature collection.
func (r *Registry) GeoJSON() ([]byte, error) {
	ps := r.All()
	fc := make(geom.GeoJSONFeatureCollection, 0, len(ps))
	for _, p := range ps {
		f, err := geo.Feature(p.Name, p.Location, map[string]interface{}{
			"name":     p.Name,
			"filePath": p.FilePath,
			"min":      p.VisibilityRange.Min,
			"max":      p.VisibilityRange.Max,
		})
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", p.Name, err)
		}
		fc = append(fc, f)
	}
	return json.Marshal(fc)
}

// Marshal encodes ps in the export format.
func Marshal(ps []Place) ([]byte, error) {
	if ps == nil {
		ps = []Place{}
	}
	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal places: %w", err)
	}
	return data, nil
}

// Load validates and decodes an exported snapshot.
func Load(data []byte) ([]Place, error) {
	if err := validateSnapshot(data); err != nil {
		return nil, err
	}
	var ps []Place
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("decode places: %w", err)
	}
	seen := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("load %q: %w", p.Name, ErrDuplicatePlace)
		}
		seen[p.Name] = struct{}{}
		if !p.VisibilityRange.Valid() {
			return nil, fmt.Errorf("load %q: %w", p.Name, ErrInvalidRange)
		}
	}
	return ps, nil
}
