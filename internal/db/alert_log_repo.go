package db

import (
	"context"
	"time"

	"amberline/internal/types"
)

// AlertLogRepository appends per-recipient delivery outcomes. Rows are
// never read back by dispatch.
type AlertLogRepository struct {
	db DBTX
}

// NewAlertLogRepository creates an AlertLogRepository.
func NewAlertLogRepository(db DBTX) *AlertLogRepository {
	return &AlertLogRepository{db: db}
}

// Record inserts all entries in one statement.
func (r *AlertLogRepository) Record(ctx context.Context, entries []types.AlertLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	n := len(entries)
	kinds := make([]string, n)
	eventIDs := make([]string, n)
	channels := make([]string, n)
	recipients := make([]string, n)
	successes := make([]bool, n)
	providerIDs := make([]string, n)
	errs := make([]string, n)
	createdAt := make([]time.Time, n)
	now := time.Now().UTC()

	for i, e := range entries {
		kinds[i] = string(e.EventKind)
		eventIDs[i] = e.EventID
		channels[i] = string(e.Channel)
		recipients[i] = e.Recipient
		successes[i] = e.Success
		providerIDs[i] = e.ProviderID
		errs[i] = e.Error
		createdAt[i] = e.CreatedAt
		if createdAt[i].IsZero() {
			createdAt[i] = now
		}
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO alert_log (event_kind, event_id, channel, recipient, success, provider_id, error, created_at)
		 SELECT * FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::bool[], $6::text[], $7::text[], $8::timestamptz[])`,
		kinds, eventIDs, channels, recipients, successes, providerIDs, errs, createdAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record alert log", err)
	}
	return nil
}
