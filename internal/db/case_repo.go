package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"amberline/internal/types"
)

const (
	defaultCaseListLimit = 20
	maxCaseListLimit     = 100
)

// CaseRepository provides data access for cases and their abductor record.
// Cases are never deleted; status carries the lifecycle.
type CaseRepository struct {
	db DBTX
}

// NewCaseRepository creates a CaseRepository.
func NewCaseRepository(db DBTX) *CaseRepository {
	return &CaseRepository{db: db}
}

const caseColumns = `c.id, c.case_number, c.first_name, c.last_name, c.age, c.gender,
	c.height, c.weight, c.eye_color, c.hair_color,
	c.last_seen_at, c.last_seen_location, c.last_seen_wearing,
	c.distinctive_features, c.photo_url, c.status, c.is_abducted,
	c.reported_by, c.created_at, c.updated_at`

func scanCase(row pgx.Row) (*types.Case, error) {
	var c types.Case
	err := row.Scan(
		&c.ID,
		&c.CaseNumber,
		&c.FirstName,
		&c.LastName,
		&c.Age,
		&c.Gender,
		&c.Height,
		&c.Weight,
		&c.EyeColor,
		&c.HairColor,
		&c.LastSeenAt,
		&c.LastSeenLocation,
		&c.LastSeenWearing,
		&c.DistinctiveFeatures,
		&c.PhotoURL,
		&c.Status,
		&c.IsAbducted,
		&c.ReportedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// insertCaseSQL allocates the case number from a sequence. nextval runs
// once per row and the pad width grows past four digits instead of cutting
// the value, so numbers stay unique after sequence 9999.
const insertCaseSQL = `INSERT INTO cases (
			id, case_number, first_name, last_name, age, gender,
			height, weight, eye_color, hair_color,
			last_seen_at, last_seen_location, last_seen_wearing,
			distinctive_features, photo_url, status, is_abducted, reported_by
		) VALUES (
			$1,
			(SELECT 'MC-' || to_char(NOW() AT TIME ZONE 'UTC', 'YYYYMMDD') || '-' || lpad(seq.n, GREATEST(4, length(seq.n)), '0')
			 FROM (SELECT nextval('case_number_seq')::text AS n) AS seq),
			$2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15, $16, $17
		)
		RETURNING id, case_number, created_at, updated_at`

// Create inserts a case and fills in the generated ID, case number and
// timestamps. The case number is MC-YYYYMMDD-NNNN where NNNN comes from a
// database sequence, so concurrent creates never collide. When c.Abductor
// is set it is written by the same statement: either both rows exist or
// neither does.
func (r *CaseRepository) Create(ctx context.Context, c *types.Case) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = types.CaseStatusMissing
	}

	args := []any{
		c.ID,
		c.FirstName,
		c.LastName,
		c.Age,
		c.Gender,
		c.Height,
		c.Weight,
		c.EyeColor,
		c.HairColor,
		c.LastSeenAt,
		c.LastSeenLocation,
		c.LastSeenWearing,
		c.DistinctiveFeatures,
		c.PhotoURL,
		c.Status,
		c.IsAbducted,
		c.ReportedBy,
	}

	if c.Abductor == nil {
		err := r.db.QueryRow(ctx, insertCaseSQL, args...).
			Scan(&c.ID, &c.CaseNumber, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to create case", err)
		}
		return nil
	}

	a := c.Abductor
	a.CaseID = c.ID
	if a.AddedBy == nil {
		a.AddedBy = c.ReportedBy
	}
	args = append(args,
		a.Description,
		a.VehicleDescription,
		a.VehiclePlate,
		a.LastSeenDirection,
		a.KnownAssociates,
		a.AddedBy,
	)

	err := r.db.QueryRow(ctx,
		`WITH new_case AS (
		`+insertCaseSQL+`
		), new_abductor AS (
			INSERT INTO abductor_information (
				case_id, description, vehicle_description, vehicle_plate,
				last_seen_direction, known_associates, added_by
			)
			SELECT nc.id, $18::text, $19::text, $20::text, $21::text, $22::text, $23::text
			FROM new_case nc
			RETURNING created_at, updated_at
		)
		SELECT nc.case_number, nc.created_at, nc.updated_at, na.created_at, na.updated_at
		FROM new_case nc CROSS JOIN new_abductor na`,
		args...,
	).Scan(&c.CaseNumber, &c.CreatedAt, &c.UpdatedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create case", err)
	}
	return nil
}

// GetByID returns the case or not_found_case.
func (r *CaseRepository) GetByID(ctx context.Context, id string) (*types.Case, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+caseColumns+` FROM cases c WHERE c.id = $1`,
		id,
	)
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundCase, "case not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve case", err)
	}
	return c, nil
}

// UpdateStatus sets the case status.
func (r *CaseRepository) UpdateStatus(ctx context.Context, id string, status types.CaseStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE cases SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update case status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundCase, "case not found", nil)
	}
	return nil
}

// List returns cases matching filter, newest first. Text filters are
// case-insensitive substring matches.
func (r *CaseRepository) List(ctx context.Context, filter types.CaseFilter) ([]*types.Case, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultCaseListLimit
	}
	if limit > maxCaseListLimit {
		limit = maxCaseListLimit
	}

	var conditions []string
	var args []any
	argIdx := 1

	if q := strings.TrimSpace(filter.Query); q != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(c.first_name ILIKE $%[1]d OR c.last_name ILIKE $%[1]d OR c.case_number ILIKE $%[1]d"+
				" OR c.last_seen_location ILIKE $%[1]d OR c.distinctive_features ILIKE $%[1]d)", argIdx))
		args = append(args, containsPattern(q))
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Gender != "" {
		conditions = append(conditions, fmt.Sprintf("c.gender = $%d", argIdx))
		args = append(args, filter.Gender)
		argIdx++
	}
	if loc := strings.TrimSpace(filter.Location); loc != "" {
		conditions = append(conditions, fmt.Sprintf("c.last_seen_location ILIKE $%d", argIdx))
		args = append(args, containsPattern(loc))
		argIdx++
	}
	if filter.AgeMin != nil {
		conditions = append(conditions, fmt.Sprintf("c.age >= $%d", argIdx))
		args = append(args, *filter.AgeMin)
		argIdx++
	}
	if filter.AgeMax != nil {
		conditions = append(conditions, fmt.Sprintf("c.age <= $%d", argIdx))
		args = append(args, *filter.AgeMax)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(
		`SELECT %s
		 FROM cases c
		 %s
		 ORDER BY c.created_at DESC
		 LIMIT $%d OFFSET $%d`,
		caseColumns, whereClause, argIdx, argIdx+1,
	)
	args = append(args, limit, max(filter.Offset, 0))

	return r.queryCases(ctx, "list cases", query, args...)
}

// ListMissingSince returns cases still missing that were created at or
// after cutoff, oldest first. Feeds the digest.
func (r *CaseRepository) ListMissingSince(ctx context.Context, cutoff time.Time) ([]*types.Case, error) {
	return r.queryCases(ctx, "list new missing cases",
		`SELECT `+caseColumns+`
		 FROM cases c
		 WHERE c.status = $1 AND c.created_at >= $2
		 ORDER BY c.created_at ASC`,
		types.CaseStatusMissing, cutoff,
	)
}

func (r *CaseRepository) queryCases(ctx context.Context, what, query string, args ...any) ([]*types.Case, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to "+what, err)
	}
	defer rows.Close()

	var out []*types.Case
	for rows.Next() {
		c, scanErr := scanCase(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan case row", scanErr)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating case rows", err)
	}
	return out, nil
}

// GetAbductor returns the abductor record for a case, or nil when none
// exists.
func (r *CaseRepository) GetAbductor(ctx context.Context, caseID string) (*types.AbductorInformation, error) {
	var a types.AbductorInformation
	err := r.db.QueryRow(ctx,
		`SELECT case_id, description, vehicle_description, vehicle_plate,
		        last_seen_direction, known_associates, added_by, created_at, updated_at
		 FROM abductor_information WHERE case_id = $1`,
		caseID,
	).Scan(
		&a.CaseID,
		&a.Description,
		&a.VehicleDescription,
		&a.VehiclePlate,
		&a.LastSeenDirection,
		&a.KnownAssociates,
		&a.AddedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve abductor information", err)
	}
	return &a, nil
}
