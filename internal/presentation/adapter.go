// Package presentation defines the rendering and UI surface the core drives,
// with a websocket implementation for the browser page and an in-memory one.
package presentation

import (
	"errors"

	"github.com/geoarkit/placer/internal/places"
)

// ErrUnknownEntity is returned for operations on an entity that does not exist
// or was already destroyed.
var ErrUnknownEntity = errors.New("unknown entity")

// EntityID identifies a rendered model entity.
type EntityID string

// Channel is one of the independent status text displays.
type Channel string

const (
	// ChannelPosition shows selection, capture and commit status.
	ChannelPosition Channel = "position"
	// ChannelDistance shows visibility-range status.
	ChannelDistance Channel = "distance"
)

// ExportFileName is the file the page saves an export under.
const ExportFileName = "model_positions.json"

// Adapter is the rendering layer and UI widgets.
type Adapter interface {
	// RenderPickList shows the selectable place names in order.
	RenderPickList(names []string)
	// CreateEntity places a hidden model entity for p.
	CreateEntity(p places.Place) (EntityID, error)
	// SetVisible shows or hides an entity.
	SetVisible(id EntityID, visible bool) error
	// DestroyEntity removes an entity created by CreateEntity.
	DestroyEntity(id EntityID) error
	// OnLoaded registers fn to run once the entity's assets finish loading.
	OnLoaded(id EntityID, fn func())
	// ShowStatus replaces the text of a status channel.
	ShowStatus(ch Channel, msg string)
	// SaveFile triggers a client-side file save.
	SaveFile(name string, data []byte) error
}

// EntityAttributes are the cosmetic passthrough values for a new entity.
type EntityAttributes struct {
	Rotation       string `json:"rotation"`
	Scale          string `json:"scale"`
	LookAt         string `json:"lookAt"`
	AnimationMixer bool   `json:"animationMixer"`
}

// DefaultEntityAttributes faces the camera at 0.15 scale with animations enabled.
func DefaultEntityAttributes() EntityAttributes {
	return EntityAttributes{
		Rotation:       "0 0 0",
		Scale:          "0.15 0.15 0.15",
		LookAt:         "[gps-camera]",
		AnimationMixer: true,
	}
}
