package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/merkelview/merkel-server/internal/model"
)

var _ model.LocationStore = (*LocationRepository)(nil)

type LocationRepository struct {
	db *Connection
}

func NewLocationRepository(db *Connection) *LocationRepository {
	return &LocationRepository{
		db: db,
	}
}

const locationColumns = `id, owner_id, owner_email, name, address, latitude, longitude, city, state, category, notes, photo_url, photo_key, created_at, updated_at, deleted_at`

func scanLocation(row pgx.Row) (model.Location, error) {
	var loc model.Location
	err := row.Scan(
		&loc.ID, &loc.OwnerID, &loc.OwnerEmail, &loc.Name, &loc.Address,
		&loc.Latitude, &loc.Longitude, &loc.City, &loc.State, &loc.Category,
		&loc.Notes, &loc.PhotoURL, &loc.PhotoKey,
		&loc.CreatedAt, &loc.UpdatedAt, &loc.DeletedAt,
	)
	return loc, err
}

func (r *LocationRepository) Create(ctx context.Context, location model.Location) (model.Location, error) {
	query := `
		INSERT INTO locations (id, owner_id, owner_email, name, address, latitude, longitude, city, state, category, notes, photo_url, photo_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + locationColumns

	saved, err := scanLocation(r.db.QueryRow(ctx, query,
		location.ID, location.OwnerID, location.OwnerEmail, location.Name, location.Address,
		location.Latitude, location.Longitude, location.City, location.State,
		string(location.Category), location.Notes, location.PhotoURL, location.PhotoKey,
	))
	if err != nil {
		return model.Location{}, fmt.Errorf("failed to create location: %w", err)
	}

	return saved, nil
}

func (r *LocationRepository) GetByID(ctx context.Context, id uuid.UUID) (model.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1 AND deleted_at IS NULL`

	loc, err := scanLocation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Location{}, model.ErrNotFound
		}
		return model.Location{}, fmt.Errorf("failed to get location by id: %w", err)
	}

	return loc, nil
}

func (r *LocationRepository) ListAll(ctx context.Context) ([]model.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE deleted_at IS NULL ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	return collectLocations(rows)
}

func (r *LocationRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE owner_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations by owner: %w", err)
	}
	defer rows.Close()

	return collectLocations(rows)
}

func (r *LocationRepository) Update(ctx context.Context, location model.Location) (model.Location, error) {
	query := `
		UPDATE locations
		SET name = $2, address = $3, latitude = $4, longitude = $5, city = $6, state = $7,
		    category = $8, notes = $9, photo_url = $10, photo_key = $11, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + locationColumns

	saved, err := scanLocation(r.db.QueryRow(ctx, query,
		location.ID, location.Name, location.Address, location.Latitude, location.Longitude,
		location.City, location.State, string(location.Category), location.Notes,
		location.PhotoURL, location.PhotoKey,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Location{}, model.ErrNotFound
		}
		return model.Location{}, fmt.Errorf("failed to update location: %w", err)
	}

	return saved, nil
}

func (r *LocationRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE locations SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func collectLocations(rows pgx.Rows) ([]model.Location, error) {
	var locations []model.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return locations, nil
}
