package gormstorage

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// ExportRecord is one exported snapshot.
type ExportRecord struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement"`
	ExportedAt time.Time `json:"exportedAt" gorm:"index:idx_exported_at"`
	PlaceCount int       `json:"placeCount"`
	// Document is the export file content, kept verbatim so a load
	// reproduces it byte for byte.
	Document    datatypes.JSON `json:"document"`
	SavedBounds datatypes.JSON `json:"savedBounds"`
	Places      []PlaceRecord  `json:"places" gorm:"foreignKey:ExportID;constraint:OnDelete:CASCADE"`
}

func (ExportRecord) TableName() string {
	return "exports"
}

// PlaceRecord is one place within an export, queryable by name and anchor.
type PlaceRecord struct {
	ID        uint    `json:"id" gorm:"primarykey;autoIncrement"`
	ExportID  uint    `json:"exportId" gorm:"index:idx_place_export_id"`
	Position  int     `json:"position"`
	Name      string  `json:"name" gorm:"size:128;index:idx_place_name"`
	FilePath  string  `json:"filePath"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	// Anchor is the location projected to EPSG:3857, stored as WKB.
	Anchor geom.Point `json:"anchor"`
	Min    float64    `json:"min"`
	Max    float64    `json:"max"`
}

func (PlaceRecord) TableName() string {
	return "export_places"
}

// Models lists every table the backend migrates.
var Models = []any{
	&ExportRecord{},
	&PlaceRecord{},
}
