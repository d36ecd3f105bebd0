package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"amberline/internal/types"
)

// SightingRepository provides data access for sightings. Sightings start
// unverified; MarkVerified is the only transition.
type SightingRepository struct {
	db DBTX
}

// NewSightingRepository creates a SightingRepository.
func NewSightingRepository(db DBTX) *SightingRepository {
	return &SightingRepository{db: db}
}

const sightingColumns = `id, case_id, location, sighting_time, reported_by,
	contact_number, description, verified, created_at`

func scanSighting(row pgx.Row) (*types.Sighting, error) {
	var s types.Sighting
	if err := row.Scan(
		&s.ID,
		&s.CaseID,
		&s.Location,
		&s.SightingTime,
		&s.ReportedBy,
		&s.ContactNumber,
		&s.Description,
		&s.Verified,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create stores an unverified sighting. Returns not_found_case when the
// case does not exist.
func (r *SightingRepository) Create(ctx context.Context, s *types.Sighting) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Verified = false

	err := r.db.QueryRow(ctx,
		`INSERT INTO sightings (
			id, case_id, location, sighting_time, reported_by, contact_number, description
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		s.ID,
		s.CaseID,
		s.Location,
		s.SightingTime,
		s.ReportedBy,
		s.ContactNumber,
		s.Description,
	).Scan(&s.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return types.NewAppError(types.ErrCodeNotFoundCase, "case not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create sighting", err)
	}
	return nil
}

// GetByID returns the sighting or not_found_sighting.
func (r *SightingRepository) GetByID(ctx context.Context, id string) (*types.Sighting, error) {
	s, err := scanSighting(r.db.QueryRow(ctx,
		`SELECT `+sightingColumns+` FROM sightings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSighting, "sighting not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve sighting", err)
	}
	return s, nil
}

// MarkVerified flips verified to true. changed is false when the sighting
// was already verified, so callers alert only once per sighting.
func (r *SightingRepository) MarkVerified(ctx context.Context, id string) (changed bool, err error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE sightings SET verified = TRUE WHERE id = $1 AND verified = FALSE`, id)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to verify sighting", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sightings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check sighting", err)
	}
	if !exists {
		return false, types.NewAppError(types.ErrCodeNotFoundSighting, "sighting not found", nil)
	}
	return false, nil
}

// ListVerifiedByCase returns verified sightings for a case, most recent
// sighting time first.
func (r *SightingRepository) ListVerifiedByCase(ctx context.Context, caseID string) ([]*types.Sighting, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sightingColumns+`
		 FROM sightings
		 WHERE case_id = $1 AND verified = TRUE
		 ORDER BY sighting_time DESC`,
		caseID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list sightings", err)
	}
	defer rows.Close()

	var out []*types.Sighting
	for rows.Next() {
		s, scanErr := scanSighting(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan sighting row", scanErr)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating sighting rows", err)
	}
	return out, nil
}
