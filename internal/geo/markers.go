package geo

import (
	"sync"

	"github.com/google/uuid"
)

// MarkerKind distinguishes the single transient selection marker from
// markers bound to saved locations.
type MarkerKind string

const (
	// MarkerPending is the in-progress, not-yet-saved selection.
	MarkerPending MarkerKind = "pending"
	// MarkerRecord is bound to a saved location.
	MarkerRecord MarkerKind = "record"
)

// Marker is the view state for one map pin.
type Marker struct {
	Kind       MarkerKind
	LocationID uuid.UUID
	Latitude   float64
	Longitude  float64
	Label      string
}

// MarkerSet owns marker lifetime: at most one pending marker, and one
// record marker per visible location keyed by its identifier. Nothing else
// mutates markers.
type MarkerSet struct {
	mu      sync.Mutex
	pending *Marker
	records map[uuid.UUID]Marker
}

// NewMarkerSet creates an empty marker set.
func NewMarkerSet() *MarkerSet {
	return &MarkerSet{records: make(map[uuid.UUID]Marker)}
}

// SetPending replaces the pending selection marker.
func (s *MarkerSet) SetPending(lat, lng float64, label string) Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Marker{Kind: MarkerPending, Latitude: lat, Longitude: lng, Label: label}
	s.pending = &m
	return m
}

// Pending returns the current pending marker, if any.
func (s *MarkerSet) Pending() (Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Marker{}, false
	}
	return *s.pending, true
}

// ClearPending removes the pending marker.
func (s *MarkerSet) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// UpsertRecord adds or replaces the marker for a saved location.
func (s *MarkerSet) UpsertRecord(id uuid.UUID, lat, lng float64, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = Marker{Kind: MarkerRecord, LocationID: id, Latitude: lat, Longitude: lng, Label: label}
}

// RemoveRecord deletes the marker for a saved location.
func (s *MarkerSet) RemoveRecord(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// ClearRecords deletes every record marker.
func (s *MarkerSet) ClearRecords() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[uuid.UUID]Marker)
}

// RecordMarkers returns a copy of the record marker set.
func (s *MarkerSet) RecordMarkers() []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Marker, 0, len(s.records))
	for _, m := range s.records {
		out = append(out, m)
	}
	return out
}
