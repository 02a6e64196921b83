package presentation

import (
	"fmt"
	"sync"

	"github.com/geoarkit/placer/internal/places"
	"github.com/google/uuid"
)

// RecordedEntity is the state of an entity held by a Recorder.
type RecordedEntity struct {
	ID      EntityID
	Place   places.Place
	Visible bool
	Loaded  bool
	// Writes counts SetVisible calls, including redundant ones.
	Writes int
}

// Recorder is an in-memory Adapter for headless runs and tests.
type Recorder struct {
	mu        sync.Mutex
	entities  map[EntityID]*RecordedEntity
	order     []EntityID
	onLoaded  map[EntityID][]func()
	pickList  []string
	statuses  map[Channel]string
	files     map[string][]byte
	destroyed int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		entities: make(map[EntityID]*RecordedEntity),
		onLoaded: make(map[EntityID][]func()),
		statuses: make(map[Channel]string),
		files:    make(map[string][]byte),
	}
}

// RenderPickList implements Adapter.
func (r *Recorder) RenderPickList(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pickList = append([]string(nil), names...)
}

// CreateEntity implements Adapter.
func (r *Recorder) CreateEntity(p places.Place) (EntityID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := EntityID(uuid.NewString())
	r.entities[id] = &RecordedEntity{ID: id, Place: p}
	r.order = append(r.order, id)
	return id, nil
}

// SetVisible implements Adapter.
func (r *Recorder) SetVisible(id EntityID, visible bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return fmt.Errorf("set visible %s: %w", id, ErrUnknownEntity)
	}
	e.Visible = visible
	e.Writes++
	return nil
}

// DestroyEntity implements Adapter.
func (r *Recorder) DestroyEntity(id EntityID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[id]; !ok {
		return fmt.Errorf("destroy %s: %w", id, ErrUnknownEntity)
	}
	delete(r.entities, id)
	delete(r.onLoaded, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.destroyed++
	return nil
}

// OnLoaded implements Adapter. Callbacks for an already loaded entity run immediately.
func (r *Recorder) OnLoaded(id EntityID, fn func()) {
	r.mu.Lock()
	e, ok := r.entities[id]
	if ok && e.Loaded {
		r.mu.Unlock()
		fn()
		return
	}
	if ok {
		r.onLoaded[id] = append(r.onLoaded[id], fn)
	}
	r.mu.Unlock()
}

// MarkLoaded simulates the page finishing the asset load for id.
func (r *Recorder) MarkLoaded(id EntityID) {
	r.mu.Lock()
	e, ok := r.entities[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.Loaded = true
	fns := r.onLoaded[id]
	delete(r.onLoaded, id)
	r.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ShowStatus implements Adapter.
func (r *Recorder) ShowStatus(ch Channel, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses[ch] = msg
}

// SaveFile implements Adapter.
func (r *Recorder) SaveFile(name string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[name] = append([]byte(nil), data...)
	return nil
}

// PickList returns the last rendered pick list.
func (r *Recorder) PickList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pickList...)
}

// Status returns the text of a status channel.
func (r *Recorder) Status(ch Channel) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[ch]
}

// File returns the content saved under name.
func (r *Recorder) File(name string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[name]
	return data, ok
}

// Entity returns a copy of the live entity with the given id.
func (r *Recorder) Entity(id EntityID) (RecordedEntity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return RecordedEntity{}, false
	}
	return *e, true
}

// EntityByName returns the live entity rendered for the named place.
func (r *Recorder) EntityByName(name string) (RecordedEntity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		if e := r.entities[id]; e.Place.Name == name {
			return *e, true
		}
	}
	return RecordedEntity{}, false
}

// Entities returns the live entities in creation order.
func (r *Recorder) Entities() []RecordedEntity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedEntity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entities[id])
	}
	return out
}

// Destroyed returns how many entities have been destroyed.
func (r *Recorder) Destroyed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}
