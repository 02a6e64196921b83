package places

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrInvalidSnapshot is returned when a snapshot does not match the place schema.
	ErrInvalidSnapshot = errors.New("invalid places snapshot")
	// ErrNoSnapshot is returned by export sinks that have nothing stored yet.
	ErrNoSnapshot = errors.New("no stored snapshot")
)

const snapshotSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["name", "filePath", "location", "visibilityRange"],
    "properties": {
      "name": {"type": "string", "minLength": 1},
      "filePath": {"type": "string"},
      "location": {
        "type": "object",
        "required": ["lat", "lng"],
        "properties": {
          "lat": {"type": "number", "minimum": -90, "maximum": 90},
          "lng": {"type": "number", "minimum": -180, "maximum": 180}
        }
      },
      "visibilityRange": {
        "type": "object",
        "required": ["min", "max"],
        "properties": {
          "min": {"type": "number", "minimum": 0},
          "max": {"type": "number", "minimum": 0}
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(snapshotSchema)

func validateSnapshot(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidSnapshot, strings.Join(msgs, "; "))
	}
	return nil
}
