package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/service"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing.
const maxUploadMemory = 8 << 20

// LocationHandler serves the location CRUD endpoints. Create and update
// accept either a JSON body or multipart form data with an optional photo
// part.
type LocationHandler struct {
	locations  *service.Location
	ctxManager model.ContextManager
}

func NewLocationHandler(locations *service.Location, ctxManager model.ContextManager) *LocationHandler {
	return &LocationHandler{locations: locations, ctxManager: ctxManager}
}

type locationDraftRequest struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
	State     string  `json:"state"`
	Category  string  `json:"category"`
	Notes     string  `json:"notes"`
}

type locationResponse struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	OwnerEmail string    `json:"owner_email"`
	Name       string    `json:"name"`
	Address    string    `json:"address,omitempty"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	Category   string    `json:"category"`
	Notes      string    `json:"notes,omitempty"`
	PhotoURL   string    `json:"photo_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// List returns the visible locations, newest first, optionally narrowed by
// category, search term and ownership.
// GET /api/locations?category=&q=&mine=
func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ctxManager.GetUserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	locations, err := h.locations.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	query := r.URL.Query()
	mine, _ := strconv.ParseBool(query.Get("mine"))
	filtered := service.Filter(locations, service.FilterParams{
		Category:      model.Category(query.Get("category")),
		SearchTerm:    query.Get("q"),
		MineOnly:      mine,
		CurrentUserID: userID,
	})

	out := make([]locationResponse, 0, len(filtered))
	for _, loc := range filtered {
		out = append(out, toLocationResponse(loc))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get returns a single location.
// GET /api/locations/{id}
func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, model.NewValidationError("id", "must be a UUID"))
		return
	}

	location, err := h.locations.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLocationResponse(location))
}

// Create saves a new location for the caller.
// POST /api/locations
func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ctxManager.GetUserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	draft, photo, err := parseDraft(r)
	if err != nil {
		writeError(w, err)
		return
	}

	saved, err := h.locations.Save(r.Context(), userID, draft, photo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLocationResponse(saved))
}

// Update replaces the mutable fields of an owned location.
// PUT /api/locations/{id}
func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ctxManager.GetUserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, model.NewValidationError("id", "must be a UUID"))
		return
	}

	draft, photo, err := parseDraft(r)
	if err != nil {
		writeError(w, err)
		return
	}

	saved, err := h.locations.Update(r.Context(), userID, id, draft, photo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLocationResponse(saved))
}

// Delete removes an owned location.
// DELETE /api/locations/{id}
func (h *LocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ctxManager.GetUserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, model.NewValidationError("id", "must be a UUID"))
		return
	}

	if err := h.locations.Delete(r.Context(), userID, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Categories returns the fixed category set.
// GET /api/locations/categories
func (h *LocationHandler) Categories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Categories())
}

func parseDraft(r *http.Request) (model.LocationDraft, *model.Photo, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return parseMultipartDraft(r)
	}

	var req locationDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return model.LocationDraft{}, nil, model.NewValidationError("body", "must be valid JSON")
	}
	return draftFromRequest(req), nil, nil
}

func parseMultipartDraft(r *http.Request) (model.LocationDraft, *model.Photo, error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return model.LocationDraft{}, nil, model.NewValidationError("body", "must be valid multipart form data")
	}

	lat, err := strconv.ParseFloat(r.FormValue("latitude"), 64)
	if err != nil {
		return model.LocationDraft{}, nil, model.NewValidationError("latitude", "must be a number")
	}
	lng, err := strconv.ParseFloat(r.FormValue("longitude"), 64)
	if err != nil {
		return model.LocationDraft{}, nil, model.NewValidationError("longitude", "must be a number")
	}

	draft := model.LocationDraft{
		Name:      r.FormValue("name"),
		Address:   r.FormValue("address"),
		Latitude:  lat,
		Longitude: lng,
		City:      r.FormValue("city"),
		State:     r.FormValue("state"),
		Category:  model.Category(r.FormValue("category")),
		Notes:     r.FormValue("notes"),
	}

	file, header, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return draft, nil, nil
	}
	if err != nil {
		return model.LocationDraft{}, nil, model.NewValidationError("photo", "must be a file part")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return model.LocationDraft{}, nil, model.NewUploadError("failed to read photo part")
	}

	return draft, &model.Photo{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

func draftFromRequest(req locationDraftRequest) model.LocationDraft {
	return model.LocationDraft{
		Name:      req.Name,
		Address:   req.Address,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		City:      req.City,
		State:     req.State,
		Category:  model.Category(req.Category),
		Notes:     req.Notes,
	}
}

func toLocationResponse(loc model.Location) locationResponse {
	return locationResponse{
		ID:         loc.ID,
		OwnerID:    loc.OwnerID,
		OwnerEmail: loc.OwnerEmail,
		Name:       loc.Name,
		Address:    loc.Address,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		City:       loc.City,
		State:      loc.State,
		Category:   string(loc.Category),
		Notes:      loc.Notes,
		PhotoURL:   loc.PhotoURL,
		CreatedAt:  loc.CreatedAt,
		UpdatedAt:  loc.UpdatedAt,
	}
}
