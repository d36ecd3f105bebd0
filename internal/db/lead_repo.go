package db

import (
	"context"

	"github.com/google/uuid"

	"amberline/internal/types"
)

// LeadRepository provides data access for public tips.
type LeadRepository struct {
	db DBTX
}

// NewLeadRepository creates a LeadRepository.
func NewLeadRepository(db DBTX) *LeadRepository {
	return &LeadRepository{db: db}
}

// Create stores a lead with status "new".
func (r *LeadRepository) Create(ctx context.Context, l *types.Lead) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.Status = types.LeadStatusNew

	err := r.db.QueryRow(ctx,
		`INSERT INTO leads (
			id, case_id, reported_by, reporter_name, reporter_email,
			reporter_phone, information, evidence_url, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		l.ID,
		l.CaseID,
		l.ReportedBy,
		l.ReporterName,
		l.ReporterEmail,
		l.ReporterPhone,
		l.Information,
		l.EvidenceURL,
		l.Status,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return types.NewAppError(types.ErrCodeNotFoundCase, "case not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create lead", err)
	}
	return nil
}

// UpdateStatus moves a lead to status. Any transition between known
// statuses is allowed.
func (r *LeadRepository) UpdateStatus(ctx context.Context, id string, status types.LeadStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE leads SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update lead status", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundLead, "lead not found", nil)
	}
	return nil
}

// ListByCase returns a case's leads, newest first.
func (r *LeadRepository) ListByCase(ctx context.Context, caseID string) ([]*types.Lead, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, case_id, reported_by, reporter_name, reporter_email,
		        reporter_phone, information, evidence_url, status, created_at, updated_at
		 FROM leads
		 WHERE case_id = $1
		 ORDER BY created_at DESC`,
		caseID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list leads", err)
	}
	defer rows.Close()

	var out []*types.Lead
	for rows.Next() {
		var l types.Lead
		if err := rows.Scan(
			&l.ID,
			&l.CaseID,
			&l.ReportedBy,
			&l.ReporterName,
			&l.ReporterEmail,
			&l.ReporterPhone,
			&l.Information,
			&l.EvidenceURL,
			&l.Status,
			&l.CreatedAt,
			&l.UpdatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan lead row", err)
		}
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating lead rows", err)
	}
	return out, nil
}
