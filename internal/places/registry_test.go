package places

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/geoarkit/placer/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedPlaces(t *testing.T) {
	seed := SeedPlaces()
	require.Len(t, seed, 2)

	assert.Equal(t, "Magnemite", seed[0].Name)
	assert.Equal(t, "./assets/magnemite/scene.gltf", seed[0].FilePath)
	assert.Equal(t, 1.3087085765187283, seed[0].Location.Latitude)
	assert.Equal(t, 103.85002403454892, seed[0].Location.Longitude)
	assert.Equal(t, VisibilityRange{Min: 0, Max: 100}, seed[0].VisibilityRange)

	assert.Equal(t, "Dragonite", seed[1].Name)
	assert.Equal(t, "./assets/dragonite/scene.gltf", seed[1].FilePath)
	assert.Equal(t, 1.306656407996899, seed[1].Location.Latitude)
	assert.Equal(t, 103.85012141436107, seed[1].Location.Longitude)
	assert.Equal(t, VisibilityRange{Min: 10, Max: 150}, seed[1].VisibilityRange)
}

func TestVisibilityRange_ContainsIsStrict(t *testing.T) {
	r := VisibilityRange{Min: 10, Max: 150}
	tests := []struct {
		d    float64
		want bool
	}{
		{0, false},
		{10, false},
		{10.0001, true},
		{50, true},
		{149.999, true},
		{150, false},
		{200, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Contains(tt.d), "distance %v", tt.d)
	}
}

func TestParseBound(t *testing.T) {
	b, err := ParseBound("min")
	require.NoError(t, err)
	assert.Equal(t, BoundMin, b)

	b, err = ParseBound("max")
	require.NoError(t, err)
	assert.Equal(t, BoundMax, b)

	_, err = ParseBound("mid")
	assert.Error(t, err)
}

func TestRegistry_AllPreservesOrder(t *testing.T) {
	r := NewRegistry(SeedPlaces())

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "Magnemite", all[0].Name)
	assert.Equal(t, "Dragonite", all[1].Name)
	assert.Equal(t, []string{"Magnemite", "Dragonite"}, r.Names())
	assert.Equal(t, 2, r.Len())

	// returned slice is a copy
	all[0].Name = "changed"
	assert.Equal(t, "Magnemite", r.All()[0].Name)
}

func TestRegistry_Find(t *testing.T) {
	r := NewRegistry(SeedPlaces())

	p, ok := r.Find("Dragonite")
	require.True(t, ok)
	assert.Equal(t, "./assets/dragonite/scene.gltf", p.FilePath)

	_, ok = r.Find("dragonite")
	assert.False(t, ok, "lookup is exact-match")

	_, ok = r.Find("Pikachu")
	assert.False(t, ok)
}

func TestRegistry_CommitAnchor(t *testing.T) {
	r := NewRegistry(SeedPlaces())
	c := geo.Coordinate{Latitude: 1.5, Longitude: 103.5}

	require.NoError(t, r.CommitAnchor("Magnemite", c))

	p, _ := r.Find("Magnemite")
	assert.Equal(t, c, p.Location)

	// the other place is untouched
	d, _ := r.Find("Dragonite")
	assert.Equal(t, SeedPlaces()[1].Location, d.Location)
}

func TestRegistry_CommitAnchorUnknownPlace(t *testing.T) {
	r := NewRegistry(SeedPlaces())

	err := r.CommitAnchor("Pikachu", geo.Coordinate{})
	assert.True(t, errors.Is(err, ErrUnknownPlace))
	assert.Equal(t, SeedPlaces(), r.All())
}

func TestRegistry_SetVisibilityBound(t *testing.T) {
	tests := []struct {
		name    string
		place   string
		bound   Bound
		value   float64
		want    VisibilityRange
		wantErr error
	}{
		{"raise max", "Magnemite", BoundMax, 250, VisibilityRange{Min: 0, Max: 250}, nil},
		{"raise min", "Dragonite", BoundMin, 20, VisibilityRange{Min: 20, Max: 150}, nil},
		{"min equal to max", "Magnemite", BoundMin, 100, VisibilityRange{Min: 0, Max: 100}, ErrInvalidRange},
		{"min above max", "Dragonite", BoundMin, 151, VisibilityRange{Min: 10, Max: 150}, ErrInvalidRange},
		{"max below min", "Dragonite", BoundMax, 5, VisibilityRange{Min: 10, Max: 150}, ErrInvalidRange},
		{"max equal to min", "Dragonite", BoundMax, 10, VisibilityRange{Min: 10, Max: 150}, ErrInvalidRange},
		{"negative min", "Dragonite", BoundMin, -1, VisibilityRange{Min: 10, Max: 150}, ErrInvalidRange},
		{"negative max", "Magnemite", BoundMax, -5, VisibilityRange{Min: 0, Max: 100}, ErrInvalidRange},
		{"unknown bound", "Magnemite", Bound("mid"), 5, VisibilityRange{Min: 0, Max: 100}, ErrInvalidRange},
		{"infinite max", "Magnemite", BoundMax, math.Inf(1), VisibilityRange{Min: 0, Max: 100}, ErrInvalidRange},
		{"infinite min", "Dragonite", BoundMin, math.Inf(1), VisibilityRange{Min: 10, Max: 150}, ErrInvalidRange},
		{"NaN max", "Magnemite", BoundMax, math.NaN(), VisibilityRange{Min: 0, Max: 100}, ErrInvalidRange},
		{"NaN min", "Dragonite", BoundMin, math.NaN(), VisibilityRange{Min: 10, Max: 150}, ErrInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(SeedPlaces())

			got, err := r.SetVisibilityBound(tt.place, tt.bound, tt.value)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)

			p, _ := r.Find(tt.place)
			assert.Equal(t, tt.want, p.VisibilityRange)
		})
	}
}

func TestRegistry_SetVisibilityBoundUnknownPlace(t *testing.T) {
	r := NewRegistry(SeedPlaces())
	_, err := r.SetVisibilityBound("Pikachu", BoundMax, 10)
	assert.True(t, errors.Is(err, ErrUnknownPlace))
}

func TestRegistry_SaveBoundsSnapshotsCurrentRange(t *testing.T) {
	r := NewRegistry(SeedPlaces())

	_, ok := r.SavedBound("Magnemite")
	assert.False(t, ok)

	_, err := r.SetVisibilityBound("Magnemite", BoundMax, 300)
	require.NoError(t, err)
	saved, err := r.SaveBounds("Magnemite")
	require.NoError(t, err)
	assert.Equal(t, VisibilityRange{Min: 0, Max: 300}, saved)

	// later edits apply to the live record but not to the saved copy
	_, err = r.SetVisibilityBound("Magnemite", BoundMax, 400)
	require.NoError(t, err)
	got, ok := r.SavedBound("Magnemite")
	require.True(t, ok)
	assert.Equal(t, VisibilityRange{Min: 0, Max: 300}, got)
	assert.Equal(t, map[string]VisibilityRange{"Magnemite": {Min: 0, Max: 300}}, r.SavedBounds())

	_, err = r.SaveBounds("Pikachu")
	assert.True(t, errors.Is(err, ErrUnknownPlace))
}

func TestRegistry_SerializeFieldNames(t *testing.T) {
	r := NewRegistry(SeedPlaces())
	data, err := r.Serialize()
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)
	assert.Equal(t, "Magnemite", raw[0]["name"])
	assert.Equal(t, "./assets/magnemite/scene.gltf", raw[0]["filePath"])
	assert.Equal(t, map[string]any{"lat": 1.3087085765187283, "lng": 103.85002403454892}, raw[0]["location"])
	assert.Equal(t, map[string]any{"min": 0.0, "max": 100.0}, raw[0]["visibilityRange"])
	assert.Contains(t, string(data), "\n  {", "snapshot is pretty-printed")
}

func TestRegistry_SerializeRoundTrip(t *testing.T) {
	r := NewRegistry(SeedPlaces())
	require.NoError(t, r.CommitAnchor("Dragonite", geo.Coordinate{Latitude: 1.30665640799689912, Longitude: 103.850121414361}))
	_, err := r.SetVisibilityBound("Dragonite", BoundMin, 12.5)
	require.NoError(t, err)

	data, err := r.Serialize()
	require.NoError(t, err)

	loaded, err := NewRegistryFromSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, r.All(), loaded.All())

	again, err := loaded.Serialize()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestLoad_RejectsInvalidSnapshots(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"not json", `{`, ErrInvalidSnapshot},
		{"object instead of array", `{"name":"x"}`, ErrInvalidSnapshot},
		{"missing location", `[{"name":"x","filePath":"a","visibilityRange":{"min":0,"max":1}}]`, ErrInvalidSnapshot},
		{"latitude out of range", `[{"name":"x","filePath":"a","location":{"lat":91,"lng":0},"visibilityRange":{"min":0,"max":1}}]`, ErrInvalidSnapshot},
		{"negative min", `[{"name":"x","filePath":"a","location":{"lat":1,"lng":0},"visibilityRange":{"min":-1,"max":1}}]`, ErrInvalidSnapshot},
		{"min not below max", `[{"name":"x","filePath":"a","location":{"lat":1,"lng":0},"visibilityRange":{"min":5,"max":5}}]`, ErrInvalidRange},
		{"duplicate names", `[
			{"name":"x","filePath":"a","location":{"lat":1,"lng":0},"visibilityRange":{"min":0,"max":1}},
			{"name":"x","filePath":"b","location":{"lat":1,"lng":0},"visibilityRange":{"min":0,"max":1}}
		]`, ErrDuplicatePlace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.data))
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestLoad_EmptyArray(t *testing.T) {
	ps, err := Load([]byte(`[]`))
	require.NoError(t, err)
	assert.Empty(t, ps)

	data, err := Marshal(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestRegistry_GeoJSON(t *testing.T) {
	r := NewRegistry(SeedPlaces())
	data, err := r.GeoJSON()
	require.NoError(t, err)

	var fc map[string]any
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc["type"])
	features, ok := fc["features"].([]any)
	require.True(t, ok)
	assert.Len(t, features, 2)
}

func TestRegistry_ConcurrentCommitAndRead(t *testing.T) {
	r := NewRegistry(SeedPlaces())
	a := geo.Coordinate{Latitude: 1, Longitude: 2}
	b := geo.Coordinate{Latitude: 3, Longitude: 4}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c := a
			if i%2 == 0 {
				c = b
			}
			_ = r.CommitAnchor("Magnemite", c)
		}(i)
		go func() {
			defer wg.Done()
			p, _ := r.Find("Magnemite")
			// never a torn mix of two writes
			ok := p.Location == a || p.Location == b || p.Location == SeedPlaces()[0].Location
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(SeedPlaces())
	_, err := r.SaveBounds("Dragonite")
	require.NoError(t, err)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	snap := r.Snapshot(at)
	assert.Equal(t, at, snap.ExportedAt)
	assert.Equal(t, SeedPlaces(), snap.Places)
	assert.Equal(t, map[string]VisibilityRange{"Dragonite": {Min: 10, Max: 150}}, snap.SavedBounds)

	doc, err := snap.Document()
	require.NoError(t, err)
	serialized, err := r.Serialize()
	require.NoError(t, err)
	assert.Equal(t, serialized, doc)
}

func TestRegistry_RejectedBoundKeepsExportEncodable(t *testing.T) {
	r := NewRegistry(SeedPlaces())
	_, err := r.SetVisibilityBound("Magnemite", BoundMax, math.Inf(1))
	require.True(t, errors.Is(err, ErrInvalidRange))

	data, err := r.Serialize()
	require.NoError(t, err)
	ps, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, SeedPlaces(), ps)
}
