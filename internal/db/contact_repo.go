package db

import (
	"context"

	"amberline/internal/types"
)

// ContactRepository reads emergency contacts for the public site.
type ContactRepository struct {
	db DBTX
}

// NewContactRepository creates a ContactRepository.
func NewContactRepository(db DBTX) *ContactRepository {
	return &ContactRepository{db: db}
}

// ListActive returns active contacts ordered by display order, then name.
func (r *ContactRepository) ListActive(ctx context.Context) ([]*types.EmergencyContact, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, organization, phone, email, website, region, display_order, active
		 FROM emergency_contacts
		 WHERE active = TRUE
		 ORDER BY display_order, name`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list emergency contacts", err)
	}
	defer rows.Close()

	var out []*types.EmergencyContact
	for rows.Next() {
		var c types.EmergencyContact
		if err := rows.Scan(&c.ID, &c.Name, &c.Organization, &c.Phone, &c.Email, &c.Website, &c.Region, &c.Order, &c.Active); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan emergency contact row", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating emergency contact rows", err)
	}
	return out, nil
}
