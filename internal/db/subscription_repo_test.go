package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"amberline/internal/types"
)

var subCreated = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func TestSubscriptionRepository_CreatePendingEmail(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db)

	var capturedSQL string
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { capturedSQL = args.String(1) }).
		Return(&mockRow{values: []any{"sub-1", "a@example.com", "Springfield", true, false, "tok", subCreated}})

	sub, err := repo.CreatePendingEmail(context.Background(), "a@example.com", "Springfield", "tok")

	require.NoError(t, err)
	assert.Equal(t, "tok", sub.VerificationToken)
	assert.False(t, sub.Verified)
	assert.Contains(t, capturedSQL, "WHERE email_subscriptions.verified = FALSE")
}

func TestSubscriptionRepository_CreatePendingEmail_AlreadyVerified(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.CreatePendingEmail(context.Background(), "a@example.com", "", "tok")

	assert.True(t, types.IsCode(err, types.ErrCodeConflictVerified))
}

func TestSubscriptionRepository_VerifyEmailToken(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db)

	var capturedSQL string
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"tok"}).
		Run(func(args mock.Arguments) { capturedSQL = args.String(1) }).
		Return(&mockRow{values: []any{"sub-1", "a@example.com", "", true, true, nil, subCreated}})

	sub, err := repo.VerifyEmailToken(context.Background(), "tok")

	require.NoError(t, err)
	assert.True(t, sub.Verified)
	assert.Empty(t, sub.VerificationToken)
	assert.Contains(t, capturedSQL, "verification_token = NULL")
}

func TestSubscriptionRepository_VerifyEmailToken_NoMatch(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.VerifyEmailToken(context.Background(), "wrong")

	assert.True(t, types.IsNotFound(err))
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubscriptionRepository_ListEligibleEmail(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db)
	db.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "subscribed = TRUE AND verified = TRUE")
	}), mock.Anything).Return(newMockRows([][]any{
		{"sub-1", "a@example.com", "", true, true, nil, subCreated},
		{"sub-2", "b@example.com", "Springfield", true, true, nil, subCreated},
	}), nil)

	subs, err := repo.ListEligibleEmail(context.Background())

	require.NoError(t, err)
	assert.Len(t, subs, 2)
	assert.Equal(t, "Springfield", subs[1].Location)
}

func smsRow(phone string, verified bool, sentAt any, freq string) []any {
	return []any{"sms-" + phone, phone, verified, sentAt, "", 50, freq, true, subCreated}
}

func TestSubscriptionRepository_UpsertPendingSMS(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db)
	sentAt := subCreated.Add(time.Minute)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{values: smsRow("+1555", false, sentAt, "daily")})

	sub, err := repo.UpsertPendingSMS(context.Background(), &types.SMSSubscription{
		PhoneNumber:        "+1555",
		VerificationSentAt: &sentAt,
		DigestFrequency:    types.DigestDaily,
		Active:             true,
	})

	require.NoError(t, err)
	require.NotNil(t, sub.VerificationSentAt)
	assert.True(t, sub.CodePending())
	assert.Equal(t, 50, sub.RadiusMiles)
}

func TestSubscriptionRepository_UpsertPendingSMS_Verified(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db)
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.UpsertPendingSMS(context.Background(), &types.SMSSubscription{PhoneNumber: "+1555"})

	assert.True(t, types.IsCode(err, types.ErrCodeConflictVerified))
}

func TestSubscriptionRepository_GetSMSByPhone(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db)
	db.On("QueryRow", mock.Anything, mock.Anything, []any{"+1555"}).
		Return(&mockRow{values: smsRow("+1555", false, nil, "weekly")})
	db.On("QueryRow", mock.Anything, mock.Anything, []any{"+1999"}).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	sub, err := repo.GetSMSByPhone(context.Background(), "+1555")
	require.NoError(t, err)
	assert.Nil(t, sub.VerificationSentAt)
	assert.Equal(t, types.DigestWeekly, sub.DigestFrequency)

	_, err = repo.GetSMSByPhone(context.Background(), "+1999")
	assert.True(t, types.IsNotFound(err))
}

func TestSubscriptionRepository_MarkSMSVerified(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db)

	var capturedSQL string
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"+1555"}).
		Run(func(args mock.Arguments) { capturedSQL = args.String(1) }).
		Return(&mockRow{values: smsRow("+1555", true, subCreated, "daily")})

	sub, err := repo.MarkSMSVerified(context.Background(), "+1555")

	require.NoError(t, err)
	assert.True(t, sub.Eligible())
	assert.Contains(t, capturedSQL, "verification_sent_at IS NOT NULL")
}

func TestSubscriptionRepository_ListDigestSMS(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db)
	db.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "digest_frequency = $1")
	}), []any{types.DigestDaily}).Return(newMockRows([][]any{smsRow("+1", true, subCreated, "daily")}), nil)

	subs, err := repo.ListDigestSMS(context.Background(), types.DigestDaily)

	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "+1", subs[0].PhoneNumber)
}

func TestSubscriptionRepository_ListEligibleSMS_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSubscriptionRepository(db)
	db.On("Query", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	_, err := repo.ListEligibleSMS(context.Background())

	assert.True(t, types.IsCode(err, types.ErrCodeInternalDB))
}
