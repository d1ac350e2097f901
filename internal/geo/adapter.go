package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/merkelview/merkel-server/internal/logger"
	"github.com/merkelview/merkel-server/internal/model"
)

// Continental default view used before any selection is made.
const (
	DefaultCenterLat = 39.8283
	DefaultCenterLng = -98.5795
	DefaultZoom      = 4
	searchZoom       = 15
)

// View is the camera state reported to clients.
type View struct {
	CenterLat float64
	CenterLng float64
	Zoom      int
}

// Selection is a normalized location draft produced by a click or a search.
type Selection struct {
	Latitude   float64
	Longitude  float64
	Address    string
	City       string
	State      string
	Country    string
	PostalCode string
	Marker     Marker
}

// MapAdapter coordinates the geocoder with marker and camera state. Only
// record-snapshot plumbing calls the record-marker methods; UI paths go
// through HandleClick, Search and ClearPendingMarker.
type MapAdapter struct {
	geocoder Geocoder
	markers  *MarkerSet
	logger   *logger.Logger

	mu             sync.Mutex
	view           View
	searchDisabled bool
	searchSeq      uint64
}

// NewMapAdapter creates an adapter centered on the continental default.
func NewMapAdapter(geocoder Geocoder, log *logger.Logger) *MapAdapter {
	return &MapAdapter{
		geocoder: geocoder,
		markers:  NewMarkerSet(),
		logger:   log,
		view:     View{CenterLat: DefaultCenterLat, CenterLng: DefaultCenterLng, Zoom: DefaultZoom},
	}
}

// View returns the current camera state.
func (a *MapAdapter) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

// SearchDisabled reports whether forward search has been disabled after the
// geocoder reported itself unavailable.
func (a *MapAdapter) SearchDisabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.searchDisabled
}

// Markers returns the marker set for snapshot-driven record maintenance.
func (a *MapAdapter) Markers() *MarkerSet {
	return a.markers
}

// HandleClick places the single pending selection marker at the clicked
// coordinate and reverse-geocodes it best-effort. A click without an active
// session is rejected. When the geocoder is unavailable, forward search is
// disabled and the raw coordinates stand in for the address.
func (a *MapAdapter) HandleClick(ctx context.Context, session *model.Session, lat, lng float64) (Selection, error) {
	if session == nil {
		return Selection{}, model.NewPermissionError("sign in to select a location")
	}

	sel := Selection{
		Latitude:  lat,
		Longitude: lng,
		Address:   fmt.Sprintf("%.6f, %.6f", lat, lng),
	}

	result, err := a.geocoder.ReverseGeocode(ctx, lat, lng)
	switch {
	case err == nil:
		sel.Address = result.FormattedAddress
		sel.City = result.City
		sel.State = result.State
		sel.Country = result.Country
		sel.PostalCode = result.PostalCode
	case errors.Is(err, ErrUnavailable):
		a.mu.Lock()
		a.searchDisabled = true
		a.mu.Unlock()
		a.logger.Warn("reverse geocoding unavailable, using raw coordinates",
			"lat", lat, "lng", lng)
	default:
		a.logger.Debug("reverse geocoding found no address",
			"lat", lat, "lng", lng)
	}

	sel.Marker = a.markers.SetPending(lat, lng, sel.Address)
	return sel, nil
}

// Search forward-geocodes addressText, recenters the view and places the
// pending marker. Responses from superseded searches are dropped rather than
// applied last-writer-wins.
func (a *MapAdapter) Search(ctx context.Context, addressText string) (Selection, error) {
	a.mu.Lock()
	if a.searchDisabled {
		a.mu.Unlock()
		return Selection{}, model.NewGeocodeError("address search is unavailable")
	}
	a.searchSeq++
	seq := a.searchSeq
	a.mu.Unlock()

	result, err := a.geocoder.Geocode(ctx, addressText)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			a.mu.Lock()
			a.searchDisabled = true
			a.mu.Unlock()
		}
		return Selection{}, err
	}

	a.mu.Lock()
	if seq != a.searchSeq {
		a.mu.Unlock()
		a.logger.Debug("dropping stale geocode response", "query", addressText)
		return Selection{}, model.NewGeocodeError("search superseded")
	}
	a.view = View{CenterLat: result.Latitude, CenterLng: result.Longitude, Zoom: searchZoom}
	a.mu.Unlock()

	marker := a.markers.SetPending(result.Latitude, result.Longitude, result.FormattedAddress)
	return Selection{
		Latitude:   result.Latitude,
		Longitude:  result.Longitude,
		Address:    result.FormattedAddress,
		City:       result.City,
		State:      result.State,
		Country:    result.Country,
		PostalCode: result.PostalCode,
		Marker:     marker,
	}, nil
}

// UpsertRecordMarker maintains the marker for a saved location. Called from
// snapshot plumbing, never directly by UI controllers.
func (a *MapAdapter) UpsertRecordMarker(location model.Location) {
	a.markers.UpsertRecord(location.ID, location.Latitude, location.Longitude, location.Name)
}

// RemoveRecordMarker drops the marker for a deleted location.
func (a *MapAdapter) RemoveRecordMarker(id uuid.UUID) {
	a.markers.RemoveRecord(id)
}

// ClearAllRecordMarkers drops every record marker, e.g. when a subscription
// is torn down on sign-out.
func (a *MapAdapter) ClearAllRecordMarkers() {
	a.markers.ClearRecords()
}

// ApplySnapshot replaces the record marker set with the given snapshot.
func (a *MapAdapter) ApplySnapshot(locations []model.Location) {
	a.markers.ClearRecords()
	for _, loc := range locations {
		a.UpsertRecordMarker(loc)
	}
}

// ClearPendingMarker removes the transient selection marker; called when a
// selection is committed, cancelled, or the add/edit form is closed.
func (a *MapAdapter) ClearPendingMarker() {
	a.markers.ClearPending()
}
