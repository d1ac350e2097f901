package geo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/testutil"
)

// MockGeocoder mocks the Geocoder interface
type MockGeocoder struct {
	mock.Mock
}

func (m *MockGeocoder) Geocode(ctx context.Context, address string) (Result, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(Result), args.Error(1)
}

func (m *MockGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (Result, error) {
	args := m.Called(ctx, lat, lng)
	return args.Get(0).(Result), args.Error(1)
}

func testSession() *model.Session {
	return &model.Session{UserID: uuid.New(), Email: "user@example.com", EmailVerified: true}
}

func TestMapAdapter_DefaultView(t *testing.T) {
	adapter := NewMapAdapter(&MockGeocoder{}, testutil.MakeNoopLogger())

	view := adapter.View()
	assert.InDelta(t, DefaultCenterLat, view.CenterLat, 1e-6)
	assert.InDelta(t, DefaultCenterLng, view.CenterLng, 1e-6)
	assert.Equal(t, DefaultZoom, view.Zoom)
	assert.False(t, adapter.SearchDisabled())
}

func TestMapAdapter_HandleClick(t *testing.T) {
	t.Run("no session is rejected", func(t *testing.T) {
		adapter := NewMapAdapter(&MockGeocoder{}, testutil.MakeNoopLogger())

		_, err := adapter.HandleClick(context.Background(), nil, 10, 20)
		var apiErr *model.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, model.KindPermission, apiErr.Kind)
	})

	t.Run("reverse geocode fills the selection", func(t *testing.T) {
		geocoder := &MockGeocoder{}
		geocoder.On("ReverseGeocode", mock.Anything, 37.7955, -122.3937).Return(Result{
			Latitude: 37.7955, Longitude: -122.3937,
			FormattedAddress: "Ferry Building, San Francisco",
			City:             "San Francisco", State: "CA", Country: "United States",
		}, nil)

		adapter := NewMapAdapter(geocoder, testutil.MakeNoopLogger())

		sel, err := adapter.HandleClick(context.Background(), testSession(), 37.7955, -122.3937)
		require.NoError(t, err)
		assert.Equal(t, "Ferry Building, San Francisco", sel.Address)
		assert.Equal(t, "CA", sel.State)
		assert.Equal(t, MarkerPending, sel.Marker.Kind)

		pending, ok := adapter.Markers().Pending()
		require.True(t, ok)
		assert.Equal(t, sel.Marker, pending)
	})

	t.Run("provider outage falls back to raw coordinates and disables search", func(t *testing.T) {
		geocoder := &MockGeocoder{}
		geocoder.On("ReverseGeocode", mock.Anything, 10.0, 20.0).Return(Result{}, ErrUnavailable)

		adapter := NewMapAdapter(geocoder, testutil.MakeNoopLogger())

		sel, err := adapter.HandleClick(context.Background(), testSession(), 10, 20)
		require.NoError(t, err)
		assert.Equal(t, "10.000000, 20.000000", sel.Address)
		assert.True(t, adapter.SearchDisabled())

		_, err = adapter.Search(context.Background(), "anywhere")
		assert.Error(t, err)
	})

	t.Run("no address found keeps raw coordinates but search stays enabled", func(t *testing.T) {
		geocoder := &MockGeocoder{}
		geocoder.On("ReverseGeocode", mock.Anything, 10.0, 20.0).Return(Result{}, ErrNotFound)

		adapter := NewMapAdapter(geocoder, testutil.MakeNoopLogger())

		sel, err := adapter.HandleClick(context.Background(), testSession(), 10, 20)
		require.NoError(t, err)
		assert.Equal(t, "10.000000, 20.000000", sel.Address)
		assert.False(t, adapter.SearchDisabled())
	})
}

func TestMapAdapter_Search(t *testing.T) {
	t.Run("success recenters and places the pending marker", func(t *testing.T) {
		geocoder := &MockGeocoder{}
		geocoder.On("Geocode", mock.Anything, "Ferry Building").Return(Result{
			Latitude: 37.7955, Longitude: -122.3937,
			FormattedAddress: "Ferry Building, San Francisco",
		}, nil)

		adapter := NewMapAdapter(geocoder, testutil.MakeNoopLogger())

		sel, err := adapter.Search(context.Background(), "Ferry Building")
		require.NoError(t, err)
		assert.Equal(t, "Ferry Building, San Francisco", sel.Address)

		view := adapter.View()
		assert.InDelta(t, 37.7955, view.CenterLat, 1e-6)
		assert.Equal(t, searchZoom, view.Zoom)

		_, ok := adapter.Markers().Pending()
		assert.True(t, ok)
	})

	t.Run("not found surfaces without moving the view", func(t *testing.T) {
		geocoder := &MockGeocoder{}
		geocoder.On("Geocode", mock.Anything, "nowhere").Return(Result{}, ErrNotFound)

		adapter := NewMapAdapter(geocoder, testutil.MakeNoopLogger())

		_, err := adapter.Search(context.Background(), "nowhere")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, DefaultZoom, adapter.View().Zoom)
	})

	t.Run("outage disables further searches", func(t *testing.T) {
		geocoder := &MockGeocoder{}
		geocoder.On("Geocode", mock.Anything, "anywhere").Return(Result{}, ErrUnavailable).Once()

		adapter := NewMapAdapter(geocoder, testutil.MakeNoopLogger())

		_, err := adapter.Search(context.Background(), "anywhere")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.True(t, adapter.SearchDisabled())

		// Second search is rejected before reaching the geocoder.
		_, err = adapter.Search(context.Background(), "anywhere")
		assert.Error(t, err)
		geocoder.AssertExpectations(t)
	})
}

func TestMapAdapter_RecordMarkers(t *testing.T) {
	adapter := NewMapAdapter(&MockGeocoder{}, testutil.MakeNoopLogger())

	first := model.Location{ID: uuid.New(), Name: "First", Latitude: 1, Longitude: 2}
	second := model.Location{ID: uuid.New(), Name: "Second", Latitude: 3, Longitude: 4}

	adapter.ApplySnapshot([]model.Location{first, second})
	assert.Len(t, adapter.Markers().RecordMarkers(), 2)

	// A snapshot replaces the set; removed records drop out.
	adapter.ApplySnapshot([]model.Location{second})
	markers := adapter.Markers().RecordMarkers()
	require.Len(t, markers, 1)
	assert.Equal(t, second.ID, markers[0].LocationID)

	adapter.RemoveRecordMarker(second.ID)
	assert.Empty(t, adapter.Markers().RecordMarkers())

	adapter.UpsertRecordMarker(first)
	adapter.ClearAllRecordMarkers()
	assert.Empty(t, adapter.Markers().RecordMarkers())
}

func TestMapAdapter_ClearPendingMarker(t *testing.T) {
	geocoder := &MockGeocoder{}
	geocoder.On("ReverseGeocode", mock.Anything, mock.Anything, mock.Anything).Return(Result{
		Latitude: 1, Longitude: 2, FormattedAddress: "somewhere",
	}, nil)

	adapter := NewMapAdapter(geocoder, testutil.MakeNoopLogger())
	_, err := adapter.HandleClick(context.Background(), testSession(), 1, 2)
	require.NoError(t, err)

	_, ok := adapter.Markers().Pending()
	require.True(t, ok)

	adapter.ClearPendingMarker()
	_, ok = adapter.Markers().Pending()
	assert.False(t, ok)
}

func TestMarkerSet_SinglePendingMarker(t *testing.T) {
	set := NewMarkerSet()

	set.SetPending(1, 2, "first")
	set.SetPending(3, 4, "second")

	pending, ok := set.Pending()
	require.True(t, ok)
	assert.Equal(t, "second", pending.Label)
	assert.Equal(t, 3.0, pending.Latitude)
}
