package server

import (
	"encoding/json"
	"net/http"

	"github.com/jpalmerr/peerwatch/internal/store"
)

// deviceJSON is the wire shape of a rendered row sent by the browser.
type deviceJSON struct {
	ID     string            `json:"id"`
	Alias  string            `json:"alias"`
	Labels map[string]string `json:"labels,omitempty"`
}

type devicesRequest struct {
	Devices []deviceJSON `json:"devices"`
}

type devicesResponse struct {
	Devices []store.Row `json:"devices"`
}

type panelBody struct {
	Key string `json:"key"`
}

type visibilityBody struct {
	Hidden bool `json:"hidden"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toRows(devices []deviceJSON) []store.Row {
	rows := make([]store.Row, len(devices))
	for i, d := range devices {
		rows[i] = store.Row{ID: d.ID, Alias: d.Alias, Labels: d.Labels}
	}
	return rows
}

// handleGetDevices returns the rendered rows.
func (s *Server) handleGetDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, devicesResponse{Devices: s.store.Rows()})
}

// handlePutDevices replaces the rendered rows. The next poll cycle picks
// up the new IDs.
func (s *Server) handlePutDevices(w http.ResponseWriter, r *http.Request) {
	var req devicesRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.store.SetRows(toRows(req.Devices))
	s.writeJSON(w, http.StatusOK, devicesResponse{Devices: s.store.Rows()})
}

func (s *Server) handleGetPanel(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, panelBody{Key: s.host.ActivePanel()})
}

// handlePostPanel activates a panel, starting or stopping the poller.
func (s *Server) handlePostPanel(w http.ResponseWriter, r *http.Request) {
	var body panelBody
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.host.Navigate(body.Key); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, panelBody{Key: s.host.ActivePanel()})
}

func (s *Server) handleGetVisibility(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, visibilityBody{Hidden: s.host.Hidden()})
}

// handlePostVisibility forwards the page visibility signal.
func (s *Server) handlePostVisibility(w http.ResponseWriter, r *http.Request) {
	var body visibilityBody
	if !s.decode(w, r, &body) {
		return
	}
	s.host.SetHidden(body.Hidden)
	s.writeJSON(w, http.StatusOK, body)
}

// handlePoller returns the poller snapshot.
func (s *Server) handlePoller(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.host.PollerSnapshot())
}

// decode reads a JSON body into v, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
