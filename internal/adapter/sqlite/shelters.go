package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/couchcryptid/storm-tracker-service/internal/domain"
)

var shelterColumns = []string{
	"name", "address", "city", "county", "zip_code", "latitude", "longitude",
	"capacity", "is_pet_friendly", "notes", "shelter_type", "status",
}

// ShelterRepository reads and replaces the shelter table.
type ShelterRepository struct {
	db *DB
}

// NewShelterRepository creates a ShelterRepository.
func NewShelterRepository(db *DB) *ShelterRepository {
	return &ShelterRepository{db: db}
}

// ListShelters returns the shelters matching filter, ordered by name. County
// matching ignores case.
func (r *ShelterRepository) ListShelters(ctx context.Context, filter domain.ShelterFilter) ([]domain.Shelter, error) {
	q := sq.Select(append([]string{"id"}, shelterColumns...)...).
		From("shelters").
		OrderBy("name", "id")
	if filter.County != "" {
		q = q.Where("county = ? COLLATE NOCASE", filter.County)
	}
	if filter.PetFriendly != nil {
		q = q.Where(sq.Eq{"is_pet_friendly": *filter.PetFriendly})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build shelter query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query shelters: %w", err)
	}
	defer rows.Close()

	shelters := []domain.Shelter{}
	for rows.Next() {
		var (
			s        domain.Shelter
			capacity sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Address, &s.City, &s.County, &s.ZipCode,
			&s.Latitude, &s.Longitude, &capacity, &s.IsPetFriendly, &s.Notes, &s.ShelterType, &s.Status); err != nil {
			return nil, fmt.Errorf("scan shelter: %w", err)
		}
		if capacity.Valid {
			c := int(capacity.Int64)
			s.Capacity = &c
		}
		shelters = append(shelters, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shelters: %w", err)
	}
	return shelters, nil
}

// ReplaceAll deletes every shelter and inserts shelters in one transaction.
func (r *ShelterRepository) ReplaceAll(ctx context.Context, shelters []domain.Shelter) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := sq.Delete("shelters").RunWith(tx).ExecContext(ctx); err != nil {
		return fmt.Errorf("delete shelters: %w", err)
	}

	const batch = 200
	for start := 0; start < len(shelters); start += batch {
		end := min(start+batch, len(shelters))
		ins := sq.Insert("shelters").Columns(shelterColumns...)
		for _, s := range shelters[start:end] {
			var capacity any
			if s.Capacity != nil {
				capacity = *s.Capacity
			}
			ins = ins.Values(s.Name, s.Address, s.City, s.County, s.ZipCode, s.Latitude, s.Longitude,
				capacity, s.IsPetFriendly, s.Notes, s.ShelterType, s.Status)
		}
		if _, err := ins.RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert shelters: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
