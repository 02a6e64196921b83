package presentation

import (
	"encoding/json"
	"fmt"

	"github.com/geoarkit/placer/internal/geolocation"
)

// Message types sent to the page.
const (
	TypePickList      = "pick_list"
	TypeCreateEntity  = "create_entity"
	TypeSetVisible    = "set_visible"
	TypeDestroyEntity = "destroy_entity"
	TypeStatus        = "status"
	TypeSaveFile      = "save_file"
)

// TypeGeolocationOptions tells the page how to request device fixes.
const TypeGeolocationOptions = "geolocation_options"

// Message types received from the page.
const (
	TypeAction         = "action"
	TypePosition       = "position"
	TypePositionDenied = "position_denied"
	TypeModelLoaded    = "model_loaded"
)

// Envelope wraps every websocket message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PickListPayload lists the selectable place names.
type PickListPayload struct {
	Names []string `json:"names"`
}

// EntityPayload describes an entity to create.
type EntityPayload struct {
	ID        EntityID `json:"id"`
	Name      string   `json:"name"`
	FilePath  string   `json:"filePath"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Visible   bool     `json:"visible"`
	EntityAttributes
}

// VisibilityPayload toggles an entity.
type VisibilityPayload struct {
	ID      EntityID `json:"id"`
	Visible bool     `json:"visible"`
}

// EntityRef names an entity.
type EntityRef struct {
	ID EntityID `json:"id"`
}

// StatusPayload sets the text of one status channel.
type StatusPayload struct {
	Channel Channel `json:"channel"`
	Text    string  `json:"text"`
}

// SaveFilePayload asks the page to save content under a file name.
type SaveFilePayload struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// GeolocationOptionsPayload mirrors the browser's PositionOptions; durations
// are in milliseconds.
type GeolocationOptionsPayload struct {
	EnableHighAccuracy bool  `json:"enableHighAccuracy"`
	MaximumAge         int64 `json:"maximumAge"`
	Timeout            int64 `json:"timeout"`
}

// NewGeolocationOptionsPayload converts a request policy for the page.
func NewGeolocationOptionsPayload(o geolocation.Options) GeolocationOptionsPayload {
	return GeolocationOptionsPayload{
		EnableHighAccuracy: o.HighAccuracy,
		MaximumAge:         o.MaximumAge.Milliseconds(),
		Timeout:            o.Timeout.Milliseconds(),
	}
}

// ActionPayload is an operator action.
type ActionPayload struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// PositionPayload is a device fix.
type PositionPayload = geolocation.Fix

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
