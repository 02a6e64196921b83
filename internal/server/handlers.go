package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/geoarkit/placer/internal/app"
	"github.com/geoarkit/placer/internal/dispatcher"
	"github.com/geoarkit/placer/internal/geo"
	"github.com/geoarkit/placer/internal/places"
	"github.com/geoarkit/placer/internal/storage"
	"github.com/gorilla/mux"
)

// SessionResponse describes the capture session.
type SessionResponse struct {
	State       string                            `json:"state"`
	Selected    string                            `json:"selected,omitempty"`
	Ready       bool                              `json:"ready"`
	Committed   map[string]geo.Coordinate         `json:"committed"`
	SavedBounds map[string]places.VisibilityRange `json:"savedBounds"`
}

// ActionRequest is the body of an action call.
type ActionRequest struct {
	Args []string `json:"args"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// HandleHealthcheck reports liveness and the number of connected pages.
func (s *Server) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.deps.Clients != nil {
		clients = s.deps.Clients()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": clients})
}

// HandlePlaces serves the registry in the export format.
func (s *Server) HandlePlaces(w http.ResponseWriter, r *http.Request) {
	data, err := s.deps.App.Registry().Serialize()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeRaw(w, "application/json", data)
}

// HandlePlacesGeoJSON serves the anchors as a feature collection.
func (s *Server) HandlePlacesGeoJSON(w http.ResponseWriter, r *http.Request) {
	data, err := s.deps.App.Registry().GeoJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeRaw(w, "application/geo+json", data)
}

// HandlePlace serves one place by name.
func (s *Server) HandlePlace(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	p, ok := s.deps.App.Registry().Find(name)
	if !ok {
		writeError(w, http.StatusNotFound, places.ErrUnknownPlace)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleSession serves the capture session state.
func (s *Server) HandleSession(w http.ResponseWriter, r *http.Request) {
	sess := s.deps.App.Session()
	writeJSON(w, http.StatusOK, SessionResponse{
		State:       sess.State().String(),
		Selected:    sess.Selected(),
		Ready:       sess.Ready(),
		Committed:   sess.Committed(),
		SavedBounds: s.deps.App.Registry().SavedBounds(),
	})
}

// HandleAction runs one operator action. The outcome text goes to the
// status channels as for page actions.
func (s *Server) HandleAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err := s.deps.App.Do(r.Context(), action, req.Args...)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"action": action})
	case errors.Is(err, dispatcher.ErrUnknownAction):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, dispatcher.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusUnprocessableEntity, err)
	}
}

// HandleLatestExport serves the last snapshot stored by the backend.
func (s *Server) HandleLatestExport(w http.ResponseWriter, r *http.Request) {
	loader, ok := s.deps.Backend.(storage.Loader)
	if !ok {
		writeError(w, http.StatusNotImplemented, errors.New("storage backend cannot load exports"))
		return
	}

	ps, err := loader.LoadLatest(r.Context())
	if errors.Is(err, places.ErrNoSnapshot) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	data, err := places.Marshal(ps)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeRaw(w, "application/json", data)
}

// HandleActions lists the accepted action names.
func (s *Server) HandleActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Actions)
}
