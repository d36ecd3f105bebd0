package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"amberline/internal/types"
)

// SubscriptionRepository stores email and SMS subscriptions. Verified rows
// are never reset to pending by a later subscribe.
type SubscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository creates a SubscriptionRepository.
func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const emailSubColumns = `id, email, location, subscribed, verified, verification_token, created_at`

func scanEmailSub(row pgx.Row) (*types.EmailSubscription, error) {
	var s types.EmailSubscription
	var token *string
	if err := row.Scan(&s.ID, &s.Email, &s.Location, &s.Subscribed, &s.Verified, &token, &s.CreatedAt); err != nil {
		return nil, err
	}
	if token != nil {
		s.VerificationToken = *token
	}
	return &s, nil
}

// CreatePendingEmail inserts an unverified subscription, or refreshes the
// token and location of an existing unverified one. An already verified
// address yields conflict_already_verified and is left unchanged.
func (r *SubscriptionRepository) CreatePendingEmail(ctx context.Context, email, location, token string) (*types.EmailSubscription, error) {
	sub, err := scanEmailSub(r.db.QueryRow(ctx,
		`INSERT INTO email_subscriptions (id, email, location, subscribed, verified, verification_token)
		 VALUES ($1, $2, $3, TRUE, FALSE, $4)
		 ON CONFLICT (email) DO UPDATE SET
			location = EXCLUDED.location,
			verification_token = EXCLUDED.verification_token,
			subscribed = TRUE
		 WHERE email_subscriptions.verified = FALSE
		 RETURNING `+emailSubColumns,
		uuid.NewString(), email, location, token,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeConflictVerified, "email address already subscribed", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create email subscription", err)
	}
	return sub, nil
}

// VerifyEmailToken marks the subscription holding token verified and
// clears the token in the same statement, so a token works exactly once.
func (r *SubscriptionRepository) VerifyEmailToken(ctx context.Context, token string) (*types.EmailSubscription, error) {
	sub, err := scanEmailSub(r.db.QueryRow(ctx,
		`UPDATE email_subscriptions
		 SET verified = TRUE, verification_token = NULL
		 WHERE verification_token = $1
		 RETURNING `+emailSubColumns,
		token,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "invalid verification token", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to verify email subscription", err)
	}
	return sub, nil
}

// ListEligibleEmail returns subscribed and verified email subscriptions.
func (r *SubscriptionRepository) ListEligibleEmail(ctx context.Context) ([]*types.EmailSubscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+emailSubColumns+`
		 FROM email_subscriptions
		 WHERE subscribed = TRUE AND verified = TRUE
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list email subscriptions", err)
	}
	defer rows.Close()

	var out []*types.EmailSubscription
	for rows.Next() {
		s, scanErr := scanEmailSub(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan email subscription row", scanErr)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating email subscription rows", err)
	}
	return out, nil
}

const smsSubColumns = `id, phone_number, verified, verification_sent_at, location,
	radius_miles, digest_frequency, active, created_at`

func scanSMSSub(row pgx.Row) (*types.SMSSubscription, error) {
	var s types.SMSSubscription
	if err := row.Scan(
		&s.ID,
		&s.PhoneNumber,
		&s.Verified,
		&s.VerificationSentAt,
		&s.Location,
		&s.RadiusMiles,
		&s.DigestFrequency,
		&s.Active,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSMSByPhone returns the subscription for phone or not_found_subscription.
func (r *SubscriptionRepository) GetSMSByPhone(ctx context.Context, phone string) (*types.SMSSubscription, error) {
	s, err := scanSMSSub(r.db.QueryRow(ctx,
		`SELECT `+smsSubColumns+` FROM sms_subscriptions WHERE phone_number = $1`, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "sms subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve sms subscription", err)
	}
	return s, nil
}

// UpsertPendingSMS records a code-pending subscription. Preferences of an
// unverified row are overwritten; a verified row is left unchanged and
// yields conflict_already_verified.
func (r *SubscriptionRepository) UpsertPendingSMS(ctx context.Context, sub *types.SMSSubscription) (*types.SMSSubscription, error) {
	id := sub.ID
	if id == "" {
		id = uuid.NewString()
	}
	s, err := scanSMSSub(r.db.QueryRow(ctx,
		`INSERT INTO sms_subscriptions (
			id, phone_number, verified, verification_sent_at, location,
			radius_miles, digest_frequency, active
		) VALUES ($1, $2, FALSE, $3, $4, COALESCE(NULLIF($5, 0), 50), $6, $7)
		ON CONFLICT (phone_number) DO UPDATE SET
			verification_sent_at = EXCLUDED.verification_sent_at,
			location = EXCLUDED.location,
			radius_miles = EXCLUDED.radius_miles,
			digest_frequency = EXCLUDED.digest_frequency,
			active = EXCLUDED.active
		WHERE sms_subscriptions.verified = FALSE
		RETURNING `+smsSubColumns,
		id,
		sub.PhoneNumber,
		sub.VerificationSentAt,
		sub.Location,
		sub.RadiusMiles,
		sub.DigestFrequency,
		sub.Active,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeConflictVerified, "phone number already verified", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to save sms subscription", err)
	}
	return s, nil
}

// MarkSMSVerified sets verified=true on a code-pending subscription.
func (r *SubscriptionRepository) MarkSMSVerified(ctx context.Context, phone string) (*types.SMSSubscription, error) {
	s, err := scanSMSSub(r.db.QueryRow(ctx,
		`UPDATE sms_subscriptions
		 SET verified = TRUE
		 WHERE phone_number = $1 AND verification_sent_at IS NOT NULL
		 RETURNING `+smsSubColumns,
		phone,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "no pending sms verification", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to verify sms subscription", err)
	}
	return s, nil
}

// ListEligibleSMS returns verified and active SMS subscriptions.
func (r *SubscriptionRepository) ListEligibleSMS(ctx context.Context) ([]*types.SMSSubscription, error) {
	return r.querySMS(ctx,
		`SELECT `+smsSubColumns+`
		 FROM sms_subscriptions
		 WHERE verified = TRUE AND active = TRUE
		 ORDER BY created_at`,
	)
}

// ListDigestSMS returns verified and active SMS subscriptions whose digest
// preference is freq.
func (r *SubscriptionRepository) ListDigestSMS(ctx context.Context, freq types.DigestFrequency) ([]*types.SMSSubscription, error) {
	return r.querySMS(ctx,
		`SELECT `+smsSubColumns+`
		 FROM sms_subscriptions
		 WHERE verified = TRUE AND active = TRUE AND digest_frequency = $1
		 ORDER BY created_at`,
		freq,
	)
}

func (r *SubscriptionRepository) querySMS(ctx context.Context, query string, args ...any) ([]*types.SMSSubscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list sms subscriptions", err)
	}
	defer rows.Close()

	var out []*types.SMSSubscription
	for rows.Next() {
		s, scanErr := scanSMSSub(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan sms subscription row", scanErr)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating sms subscription rows", err)
	}
	return out, nil
}
