package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/merkelview/merkel-server/internal/geo"
	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/service"
)

// MapHandler serves the map view, marker state and geocoding endpoints.
type MapHandler struct {
	adapter    *geo.MapAdapter
	auth       *service.Auth
	ctxManager model.ContextManager
}

func NewMapHandler(adapter *geo.MapAdapter, auth *service.Auth, ctxManager model.ContextManager) *MapHandler {
	return &MapHandler{adapter: adapter, auth: auth, ctxManager: ctxManager}
}

type clickRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type markerResponse struct {
	Kind       string    `json:"kind"`
	LocationID uuid.UUID `json:"location_id,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Label      string    `json:"label,omitempty"`
}

type viewResponse struct {
	CenterLat      float64 `json:"center_lat"`
	CenterLng      float64 `json:"center_lng"`
	Zoom           int     `json:"zoom"`
	SearchDisabled bool    `json:"search_disabled"`
}

type selectionResponse struct {
	Latitude   float64        `json:"latitude"`
	Longitude  float64        `json:"longitude"`
	Address    string         `json:"address"`
	City       string         `json:"city,omitempty"`
	State      string         `json:"state,omitempty"`
	Country    string         `json:"country,omitempty"`
	PostalCode string         `json:"postal_code,omitempty"`
	Marker     markerResponse `json:"marker"`
}

// View returns the camera state.
// GET /api/map/view
func (h *MapHandler) View(w http.ResponseWriter, r *http.Request) {
	view := h.adapter.View()
	writeJSON(w, http.StatusOK, viewResponse{
		CenterLat:      view.CenterLat,
		CenterLng:      view.CenterLng,
		Zoom:           view.Zoom,
		SearchDisabled: h.adapter.SearchDisabled(),
	})
}

// Markers returns every record marker plus the pending marker, if set.
// GET /api/map/markers
func (h *MapHandler) Markers(w http.ResponseWriter, r *http.Request) {
	markers := h.adapter.Markers().RecordMarkers()
	out := make([]markerResponse, 0, len(markers)+1)
	for _, m := range markers {
		out = append(out, toMarkerResponse(m))
	}
	if pending, ok := h.adapter.Markers().Pending(); ok {
		out = append(out, toMarkerResponse(pending))
	}
	writeJSON(w, http.StatusOK, out)
}

// Click places the pending selection marker at the clicked coordinate and
// reverse-geocodes it best-effort.
// POST /api/map/click
func (h *MapHandler) Click(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ctxManager.GetUserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "must be valid JSON"))
		return
	}

	session, err := h.auth.GetSession(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	selection, err := h.adapter.HandleClick(r.Context(), &session, req.Latitude, req.Longitude)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSelectionResponse(selection))
}

// Search forward-geocodes an address and recenters the view on the result.
// POST /api/map/search
func (h *MapHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "must be valid JSON"))
		return
	}
	if req.Query == "" {
		writeError(w, model.NewValidationError("query", "must not be empty"))
		return
	}

	selection, err := h.adapter.Search(r.Context(), req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSelectionResponse(selection))
}

// ClearPending removes the transient selection marker.
// POST /api/map/pending/clear
func (h *MapHandler) ClearPending(w http.ResponseWriter, r *http.Request) {
	h.adapter.ClearPendingMarker()
	w.WriteHeader(http.StatusNoContent)
}

func toMarkerResponse(m geo.Marker) markerResponse {
	return markerResponse{
		Kind:       string(m.Kind),
		LocationID: m.LocationID,
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
		Label:      m.Label,
	}
}

func toSelectionResponse(sel geo.Selection) selectionResponse {
	return selectionResponse{
		Latitude:   sel.Latitude,
		Longitude:  sel.Longitude,
		Address:    sel.Address,
		City:       sel.City,
		State:      sel.State,
		Country:    sel.Country,
		PostalCode: sel.PostalCode,
		Marker:     toMarkerResponse(sel.Marker),
	}
}
