package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/geoarkit/placer/internal/geo"
	"github.com/geoarkit/placer/internal/places"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type positionFunc func(ctx context.Context) (geo.Coordinate, bool)

func (f positionFunc) RequestPosition(ctx context.Context) (geo.Coordinate, bool) {
	return f(ctx)
}

func fixed(c geo.Coordinate) positionFunc {
	return func(context.Context) (geo.Coordinate, bool) { return c, true }
}

func unavailable() positionFunc {
	return func(context.Context) (geo.Coordinate, bool) { return geo.Coordinate{}, false }
}

var player = geo.Coordinate{Latitude: 1.3091, Longitude: 103.8503}

func TestSession_StartsIdle(t *testing.T) {
	s := NewSession(places.NewRegistry(places.SeedPlaces()), fixed(player))
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, "idle", s.State().String())
	assert.Equal(t, "", s.Selected())
}

func TestSession_CaptureThenCommit(t *testing.T) {
	reg := places.NewRegistry(places.SeedPlaces())
	s := NewSession(reg, fixed(player))

	sel, err := s.Select("Magnemite")
	require.NoError(t, err)
	assert.Equal(t, "Magnemite", sel.Place.Name)
	assert.False(t, sel.Committed)
	assert.Equal(t, Selected, s.State())

	c, err := s.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, player, c)
	assert.Equal(t, Captured, s.State())

	p, err := s.Commit()
	require.NoError(t, err)
	assert.Equal(t, player, p.Location)
	assert.Equal(t, Selected, s.State())

	got, _ := reg.Find("Magnemite")
	assert.Equal(t, player, got.Location)
	_, pending := s.Pending()
	assert.False(t, pending)
}

func TestSession_ActionsWithoutSelection(t *testing.T) {
	reg := places.NewRegistry(places.SeedPlaces())
	s := NewSession(reg, fixed(player))

	_, err := s.Capture(context.Background())
	assert.True(t, errors.Is(err, ErrNoSelection))

	_, err = s.Commit()
	assert.True(t, errors.Is(err, ErrNoSelection))

	_, err = s.SetDistance(places.BoundMax, 10)
	assert.True(t, errors.Is(err, ErrNoSelection))

	_, err = s.SaveBounds()
	assert.True(t, errors.Is(err, ErrNoSelection))

	_, err = s.Select("")
	assert.True(t, errors.Is(err, ErrNoSelection))

	assert.Equal(t, Idle, s.State())
	assert.Equal(t, places.SeedPlaces(), reg.All())
}

func TestSession_CaptureFailureKeepsState(t *testing.T) {
	s := NewSession(places.NewRegistry(places.SeedPlaces()), unavailable())
	_, err := s.Select("Dragonite")
	require.NoError(t, err)

	_, err = s.Capture(context.Background())
	assert.True(t, errors.Is(err, ErrCaptureFailed))
	assert.Equal(t, Selected, s.State())
}

func TestSession_CaptureFailureKeepsPendingCapture(t *testing.T) {
	ok := true
	s := NewSession(places.NewRegistry(places.SeedPlaces()), positionFunc(func(context.Context) (geo.Coordinate, bool) {
		return player, ok
	}))
	_, err := s.Select("Dragonite")
	require.NoError(t, err)
	_, err = s.Capture(context.Background())
	require.NoError(t, err)

	ok = false
	_, err = s.Capture(context.Background())
	assert.Error(t, err)
	assert.Equal(t, Captured, s.State())
	c, _ := s.Pending()
	assert.Equal(t, player, c)
}

func TestSession_CommitWithNothingPending(t *testing.T) {
	reg := places.NewRegistry(places.SeedPlaces())
	s := NewSession(reg, fixed(player))
	_, err := s.Select("Magnemite")
	require.NoError(t, err)

	_, err = s.Commit()
	assert.True(t, errors.Is(err, ErrNothingPending))
	assert.Equal(t, places.SeedPlaces(), reg.All())
}

func TestSession_ReselectDiscardsPendingCapture(t *testing.T) {
	reg := places.NewRegistry(places.SeedPlaces())
	s := NewSession(reg, fixed(player))

	_, err := s.Select("Magnemite")
	require.NoError(t, err)
	_, err = s.Capture(context.Background())
	require.NoError(t, err)

	_, err = s.Select("Dragonite")
	require.NoError(t, err)
	assert.Equal(t, Selected, s.State())

	_, err = s.Commit()
	assert.True(t, errors.Is(err, ErrNothingPending))
	assert.Equal(t, places.SeedPlaces(), reg.All(), "both anchors unchanged")
}

func TestSession_CaptureResolvingAfterReselectIsDropped(t *testing.T) {
	reg := places.NewRegistry(places.SeedPlaces())
	var s *Session
	s = NewSession(reg, positionFunc(func(context.Context) (geo.Coordinate, bool) {
		// operator picks another place while the request is in flight
		_, err := s.Select("Dragonite")
		require.NoError(t, err)
		return player, true
	}))

	_, err := s.Select("Magnemite")
	require.NoError(t, err)
	_, err = s.Capture(context.Background())
	assert.True(t, errors.Is(err, ErrCaptureFailed))
	assert.Equal(t, "Dragonite", s.Selected())
	assert.Equal(t, Selected, s.State())
}

func TestSession_SelectUnknownPlace(t *testing.T) {
	s := NewSession(places.NewRegistry(places.SeedPlaces()), fixed(player))
	_, err := s.Select("Pikachu")
	assert.True(t, errors.Is(err, places.ErrUnknownPlace))
	assert.Equal(t, Idle, s.State())
}

func TestSession_SetDistanceAndSaveBounds(t *testing.T) {
	reg := places.NewRegistry(places.SeedPlaces())
	s := NewSession(reg, fixed(player))
	_, err := s.Select("Dragonite")
	require.NoError(t, err)

	vr, err := s.SetDistance(places.BoundMax, 300)
	require.NoError(t, err)
	assert.Equal(t, places.VisibilityRange{Min: 10, Max: 300}, vr)

	_, err = s.SetDistance(places.BoundMin, 300)
	assert.True(t, errors.Is(err, places.ErrInvalidRange))

	saved, err := s.SaveBounds()
	require.NoError(t, err)
	assert.Equal(t, places.VisibilityRange{Min: 10, Max: 300}, saved)

	sel, err := s.Select("Dragonite")
	require.NoError(t, err)
	assert.True(t, sel.HasSaved)
	assert.Equal(t, saved, sel.Saved)
}

func TestSession_Ready(t *testing.T) {
	reg := places.NewRegistry(places.SeedPlaces())
	s := NewSession(reg, fixed(player))
	assert.False(t, s.Ready())

	for _, name := range []string{"Magnemite", "Dragonite"} {
		_, err := s.Select(name)
		require.NoError(t, err)
		_, err = s.Capture(context.Background())
		require.NoError(t, err)
		_, err = s.Commit()
		require.NoError(t, err)
	}

	assert.True(t, s.Ready())
	assert.Len(t, s.Committed(), 2)
}
