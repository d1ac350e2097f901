package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/merkelview/merkel-server/internal/logger"
	"github.com/merkelview/merkel-server/internal/metrics"
	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/retry"
	"github.com/merkelview/merkel-server/internal/sanitize"
	"github.com/merkelview/merkel-server/internal/validate"
)

// maxPhotoSize is the photo attachment size ceiling.
const maxPhotoSize = 5 << 20

// allowedPhotoTypes is the MIME allow-list for photo attachments.
var allowedPhotoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ChangeNotifier is poked after every successful mutation so the live
// subscription can push a fresh snapshot.
type ChangeNotifier interface {
	NotifyChanged()
}

// Location implements save/update/delete over the location store and the
// photo blob store.
type Location struct {
	locationStore model.LocationStore
	userStore     model.UserStore
	storage       model.Storage
	notifier      ChangeNotifier
	metrics       metrics.Recorder
	logger        *logger.Logger

	retryAttempts int
	retryBase     time.Duration
}

func NewLocation(
	locationStore model.LocationStore,
	userStore model.UserStore,
	storage model.Storage,
	notifier ChangeNotifier,
	rec metrics.Recorder,
	logger *logger.Logger,
) *Location {
	return &Location{
		locationStore: locationStore,
		userStore:     userStore,
		storage:       storage,
		notifier:      notifier,
		metrics:       rec,
		logger:        logger,
		retryAttempts: retry.DefaultAttempts,
		retryBase:     retry.DefaultBaseDelay,
	}
}

// Save validates, sanitizes and persists a new location for ownerID,
// uploading the photo first when one is supplied. Transient persistence
// failures are retried with doubling backoff; the uploaded blob is removed
// again if persistence ultimately fails.
func (s *Location) Save(ctx context.Context, ownerID uuid.UUID, draft model.LocationDraft, photo *model.Photo) (model.Location, error) {
	owner, err := s.userStore.GetByID(ctx, ownerID)
	if errors.Is(err, model.ErrNotFound) {
		return model.Location{}, model.NewPermissionError("unknown user")
	}
	if err != nil {
		return model.Location{}, fmt.Errorf("failed to get user by id: %w", err)
	}

	draft = sanitizeDraft(draft)
	if err := validate.ValidateDraft(draft); err != nil {
		return model.Location{}, err
	}

	location := model.Location{
		ID:         uuid.New(),
		OwnerID:    owner.ID,
		OwnerEmail: owner.Email,
		Name:       draft.Name,
		Address:    draft.Address,
		Latitude:   draft.Latitude,
		Longitude:  draft.Longitude,
		City:       draft.City,
		State:      draft.State,
		Category:   draft.Category,
		Notes:      draft.Notes,
	}

	if photo != nil {
		key, url, err := s.uploadPhoto(ctx, owner.ID, draft.Name, photo)
		if err != nil {
			return model.Location{}, err
		}
		location.PhotoKey = key
		location.PhotoURL = url
	}

	saved, err := s.persist(ctx, func() (model.Location, error) {
		return s.locationStore.Create(ctx, location)
	})
	if err != nil {
		if location.PhotoKey != "" {
			if delErr := s.storage.Delete(ctx, location.PhotoKey); delErr != nil {
				s.logger.Error("failed to delete photo after persistence failure",
					"photo_key", location.PhotoKey,
					"error", delErr.Error())
				s.metrics.RecordOrphanedBlob()
			}
		}
		return model.Location{}, model.NewPersistenceError("save location", err)
	}

	s.metrics.RecordLocationSaved()
	s.logger.Info("Location service: location saved",
		"location_id", saved.ID,
		"owner_id", owner.ID)
	s.notifier.NotifyChanged()
	return saved, nil
}

// Update replaces the mutable fields of an owned location. When a new photo
// is supplied the old blob is deleted best-effort after the new one is
// attached.
func (s *Location) Update(ctx context.Context, userID, id uuid.UUID, draft model.LocationDraft, photo *model.Photo) (model.Location, error) {
	existing, err := s.locationStore.GetByID(ctx, id)
	if err != nil {
		return model.Location{}, err
	}
	if existing.OwnerID != userID {
		return model.Location{}, model.NewPermissionError("only the owner may update a location")
	}

	draft = sanitizeDraft(draft)
	if err := validate.ValidateDraft(draft); err != nil {
		return model.Location{}, err
	}

	updated := existing
	updated.Name = draft.Name
	updated.Address = draft.Address
	updated.Latitude = draft.Latitude
	updated.Longitude = draft.Longitude
	updated.City = draft.City
	updated.State = draft.State
	updated.Category = draft.Category
	updated.Notes = draft.Notes

	oldPhotoKey := ""
	if photo != nil {
		key, url, err := s.uploadPhoto(ctx, userID, draft.Name, photo)
		if err != nil {
			return model.Location{}, err
		}
		oldPhotoKey = existing.PhotoKey
		updated.PhotoKey = key
		updated.PhotoURL = url
	}

	saved, err := s.persist(ctx, func() (model.Location, error) {
		return s.locationStore.Update(ctx, updated)
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Location{}, model.ErrNotFound
		}
		return model.Location{}, model.NewPersistenceError("update location", err)
	}

	if oldPhotoKey != "" {
		if err := s.storage.Delete(ctx, oldPhotoKey); err != nil {
			s.logger.Error("failed to delete replaced photo",
				"photo_key", oldPhotoKey,
				"error", err.Error())
			s.metrics.RecordOrphanedBlob()
		}
	}

	s.metrics.RecordLocationSaved()
	s.logger.Info("Location service: location updated",
		"location_id", saved.ID,
		"owner_id", userID)
	s.notifier.NotifyChanged()
	return saved, nil
}

// Delete removes an owned location, then deletes its photo best-effort. A
// blob delete failure does not roll back the record deletion. Deleting an
// already-gone id returns model.ErrNotFound.
func (s *Location) Delete(ctx context.Context, userID, id uuid.UUID) error {
	existing, err := s.locationStore.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.OwnerID != userID {
		return model.NewPermissionError("only the owner may delete a location")
	}

	if err := s.locationStore.SoftDelete(ctx, id); err != nil {
		return err
	}

	if existing.PhotoKey != "" {
		if err := s.storage.Delete(ctx, existing.PhotoKey); err != nil {
			s.logger.Error("failed to delete photo for removed location",
				"location_id", id,
				"photo_key", existing.PhotoKey,
				"error", err.Error())
			s.metrics.RecordOrphanedBlob()
		}
	}

	s.metrics.RecordLocationDeleted()
	s.logger.Info("Location service: location deleted",
		"location_id", id,
		"owner_id", userID)
	s.notifier.NotifyChanged()
	return nil
}

// Get returns a single location.
func (s *Location) Get(ctx context.Context, id uuid.UUID) (model.Location, error) {
	return s.locationStore.GetByID(ctx, id)
}

// List returns every visible location, newest first.
func (s *Location) List(ctx context.Context) ([]model.Location, error) {
	locations, err := s.locationStore.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locations, nil
}

// FilterParams narrow a snapshot for display.
type FilterParams struct {
	Category      model.Category
	SearchTerm    string
	MineOnly      bool
	CurrentUserID uuid.UUID
}

// Filter is a pure function over a snapshot: category exact-match unless
// "all", case-insensitive substring search across name/city/state/notes/
// category, and an owner filter. Order is preserved.
func Filter(locations []model.Location, params FilterParams) []model.Location {
	term := strings.ToLower(strings.TrimSpace(params.SearchTerm))

	out := make([]model.Location, 0, len(locations))
	for _, loc := range locations {
		if params.Category != "" && params.Category != "all" && loc.Category != params.Category {
			continue
		}
		if params.MineOnly && loc.OwnerID != params.CurrentUserID {
			continue
		}
		if term != "" {
			haystack := strings.ToLower(strings.Join([]string{
				loc.Name, loc.City, loc.State, loc.Notes, string(loc.Category),
			}, " "))
			if !strings.Contains(haystack, term) {
				continue
			}
		}
		out = append(out, loc)
	}
	return out
}

func (s *Location) persist(ctx context.Context, fn func() (model.Location, error)) (model.Location, error) {
	var saved model.Location
	var notFound error
	attempt := 0
	err := retry.Do(ctx, s.retryAttempts, s.retryBase, func() error {
		if attempt > 0 {
			s.metrics.RecordSaveRetry()
		}
		attempt++
		var err error
		saved, err = fn()
		if errors.Is(err, model.ErrNotFound) {
			// Not transient; stop retrying.
			notFound = err
			return nil
		}
		return err
	})
	if notFound != nil {
		return model.Location{}, notFound
	}
	if err != nil {
		return model.Location{}, err
	}
	return saved, nil
}

func (s *Location) uploadPhoto(ctx context.Context, ownerID uuid.UUID, name string, photo *model.Photo) (key, url string, err error) {
	if _, ok := allowedPhotoTypes[photo.ContentType]; !ok {
		return "", "", model.NewUploadError(fmt.Sprintf("unsupported photo type %q", photo.ContentType))
	}
	size := photo.Size
	if size == 0 {
		size = int64(len(photo.Data))
	}
	if size > maxPhotoSize {
		return "", "", model.NewUploadError("photo exceeds the 5 MiB limit")
	}

	key = fmt.Sprintf("user-%s/%d-%s%s",
		ownerID, time.Now().UnixNano(), sanitize.KeyComponent(name), allowedPhotoTypes[photo.ContentType])

	url, err = s.storage.Upload(ctx, key, bytes.NewReader(photo.Data), size, photo.ContentType)
	if err != nil {
		return "", "", model.NewUploadError(fmt.Sprintf("photo upload failed: %v", err))
	}
	return key, url, nil
}

func sanitizeDraft(draft model.LocationDraft) model.LocationDraft {
	draft.Name = sanitize.Text(draft.Name)
	draft.Address = sanitize.Text(draft.Address)
	draft.City = sanitize.Text(draft.City)
	draft.State = sanitize.Text(draft.State)
	draft.Notes = sanitize.Text(draft.Notes)
	return draft
}
