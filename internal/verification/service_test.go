package verification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amberline/internal/notifications/format"
	"amberline/internal/types"
)

// memEmailStore mirrors the repository semantics on a map keyed by address.
type memEmailStore struct {
	subs map[string]*types.EmailSubscription
}

func newMemEmailStore() *memEmailStore {
	return &memEmailStore{subs: map[string]*types.EmailSubscription{}}
}

func (m *memEmailStore) CreatePendingEmail(_ context.Context, email, location, token string) (*types.EmailSubscription, error) {
	if s, ok := m.subs[email]; ok {
		if s.Verified {
			return nil, types.NewAppError(types.ErrCodeConflictVerified, "already verified", nil)
		}
		s.VerificationToken, s.Location = token, location
		return s, nil
	}
	s := &types.EmailSubscription{ID: "e-" + email, Email: email, Location: location, Subscribed: true, VerificationToken: token}
	m.subs[email] = s
	return s, nil
}

func (m *memEmailStore) VerifyEmailToken(_ context.Context, token string) (*types.EmailSubscription, error) {
	for _, s := range m.subs {
		if s.VerificationToken != "" && s.VerificationToken == token {
			s.Verified = true
			s.VerificationToken = ""
			return s, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "not found", nil)
}

type memSMSStore struct {
	subs     map[string]*types.SMSSubscription
	getErr   error
	upserts  int
	verifies int
}

func newMemSMSStore() *memSMSStore {
	return &memSMSStore{subs: map[string]*types.SMSSubscription{}}
}

func (m *memSMSStore) GetSMSByPhone(_ context.Context, phone string) (*types.SMSSubscription, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if s, ok := m.subs[phone]; ok {
		return s, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "not found", nil)
}

func (m *memSMSStore) UpsertPendingSMS(_ context.Context, sub *types.SMSSubscription) (*types.SMSSubscription, error) {
	m.upserts++
	m.subs[sub.PhoneNumber] = sub
	return sub, nil
}

func (m *memSMSStore) MarkSMSVerified(_ context.Context, phone string) (*types.SMSSubscription, error) {
	m.verifies++
	s := m.subs[phone]
	s.Verified = true
	return s, nil
}

type fakeMailer struct {
	to   []string
	body string
	fail bool
}

func (f *fakeMailer) Send(_ context.Context, to, _, body string) types.DeliveryResult {
	f.to = append(f.to, to)
	f.body = body
	if f.fail {
		return types.FailedDelivery(types.ChannelEmail, to, types.NewAppError(types.ErrCodeUpstreamEmailProvider, "down", nil))
	}
	return types.DeliveryResult{Channel: types.ChannelEmail, Recipient: to, Success: true}
}

type fakeCodes struct {
	sendErr     error
	checkStatus types.VerificationStatus
	checkErr    error
	sends       int
	checks      int
}

func (f *fakeCodes) SendVerificationCode(context.Context, string) (types.VerificationStatus, error) {
	f.sends++
	if f.sendErr != nil {
		return types.VerificationFailed, f.sendErr
	}
	return types.VerificationPending, nil
}

func (f *fakeCodes) CheckVerificationCode(context.Context, string, string) (types.VerificationStatus, error) {
	f.checks++
	return f.checkStatus, f.checkErr
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) error {
	return types.NewAppError(types.ErrCodeRateLimit, "slow down", nil)
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type harness struct {
	emails *memEmailStore
	sms    *memSMSStore
	mailer *fakeMailer
	codes  *fakeCodes
	svc    *Service
}

func newHarness(limiter RequestLimiter) *harness {
	h := &harness{
		emails: newMemEmailStore(),
		sms:    newMemSMSStore(),
		mailer: &fakeMailer{},
		codes:  &fakeCodes{},
	}
	h.svc = NewService(Config{
		Emails:    h.emails,
		SMS:       h.sms,
		Mailer:    h.mailer,
		Codes:     h.codes,
		Limiter:   limiter,
		Formatter: format.New("https://amberline.example"),
		Clock:     fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	})
	return h
}

func TestSubscribeEmail_SendsLinkWithToken(t *testing.T) {
	h := newHarness(nil)

	sub, err := h.svc.SubscribeEmail(context.Background(), "  Parent@Example.com ", "Springfield")

	require.NoError(t, err)
	assert.Equal(t, "parent@example.com", sub.Email)
	assert.False(t, sub.Verified)
	assert.Len(t, sub.VerificationToken, TokenBytes*2)
	assert.Equal(t, []string{"parent@example.com"}, h.mailer.to)
	assert.Contains(t, h.mailer.body, "https://amberline.example/verify-email/"+sub.VerificationToken+"/")
}

func TestSubscribeEmail_ResubscribeRotatesToken(t *testing.T) {
	h := newHarness(nil)
	first, err := h.svc.SubscribeEmail(context.Background(), "a@example.com", "")
	require.NoError(t, err)
	oldToken := first.VerificationToken

	second, err := h.svc.SubscribeEmail(context.Background(), "a@example.com", "")
	require.NoError(t, err)

	assert.NotEqual(t, oldToken, second.VerificationToken)
	_, err = h.svc.VerifyEmail(context.Background(), oldToken)
	assert.True(t, types.IsNotFound(err))
}

func TestSubscribeEmail_AlreadyVerified(t *testing.T) {
	h := newHarness(nil)
	h.emails.subs["a@example.com"] = &types.EmailSubscription{Email: "a@example.com", Subscribed: true, Verified: true}

	_, err := h.svc.SubscribeEmail(context.Background(), "a@example.com", "")

	assert.True(t, types.IsCode(err, types.ErrCodeConflictVerified))
	assert.Empty(t, h.mailer.to)
}

func TestSubscribeEmail_MailFailure(t *testing.T) {
	h := newHarness(nil)
	h.mailer.fail = true

	sub, err := h.svc.SubscribeEmail(context.Background(), "a@example.com", "")

	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamEmailProvider))
	require.NotNil(t, sub)
	assert.False(t, sub.Verified)
}

func TestSubscribeEmail_RateLimited(t *testing.T) {
	h := newHarness(denyLimiter{})

	_, err := h.svc.SubscribeEmail(context.Background(), "a@example.com", "")

	assert.True(t, types.IsCode(err, types.ErrCodeRateLimit))
	assert.Empty(t, h.emails.subs)
}

func TestVerifyEmail_ConsumesToken(t *testing.T) {
	h := newHarness(nil)
	sub, err := h.svc.SubscribeEmail(context.Background(), "a@example.com", "")
	require.NoError(t, err)
	token := sub.VerificationToken

	verified, err := h.svc.VerifyEmail(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.Empty(t, verified.VerificationToken)

	_, err = h.svc.VerifyEmail(context.Background(), token)
	assert.True(t, types.IsNotFound(err), "replay must not succeed")
	assert.True(t, h.emails.subs["a@example.com"].Verified, "replay must not revert verified")
}

func TestVerifyEmail_UnknownTokenChangesNothing(t *testing.T) {
	h := newHarness(nil)
	for _, addr := range []string{"a@example.com", "b@example.com"} {
		_, err := h.svc.SubscribeEmail(context.Background(), addr, "")
		require.NoError(t, err)
	}

	for _, bad := range []string{"", "   ", "deadbeef", strings.Repeat("0", TokenBytes*2)} {
		_, err := h.svc.VerifyEmail(context.Background(), bad)
		assert.True(t, types.IsNotFound(err), "token %q", bad)
	}
	for _, s := range h.emails.subs {
		assert.False(t, s.Verified)
	}
}

func TestRequestSMSCode_EntersCodePending(t *testing.T) {
	h := newHarness(nil)

	sub, err := h.svc.RequestSMSCode(context.Background(), SMSRequest{Phone: "+15550001111", Location: "Springfield"})

	require.NoError(t, err)
	assert.True(t, sub.CodePending())
	assert.Equal(t, types.DigestDaily, sub.DigestFrequency)
	assert.True(t, sub.Active)
	assert.Equal(t, 1, h.codes.sends)
}

func TestRequestSMSCode_ProviderFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(nil)
	h.codes.sendErr = types.NewAppError(types.ErrCodeGatewayDisabled, "disabled", nil)

	_, err := h.svc.RequestSMSCode(context.Background(), SMSRequest{Phone: "+15550001111"})

	assert.True(t, types.IsCode(err, types.ErrCodeGatewayDisabled))
	assert.Zero(t, h.sms.upserts)
}

func TestRequestSMSCode_Validation(t *testing.T) {
	h := newHarness(nil)

	_, err := h.svc.RequestSMSCode(context.Background(), SMSRequest{Phone: " "})
	assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidPhone))

	_, err = h.svc.RequestSMSCode(context.Background(), SMSRequest{Phone: "+1555", DigestFrequency: "hourly"})
	assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidFilter))
	assert.Zero(t, h.codes.sends)
}

func TestRequestSMSCode_AlreadyVerified(t *testing.T) {
	h := newHarness(nil)
	h.sms.subs["+1555"] = &types.SMSSubscription{PhoneNumber: "+1555", Verified: true, Active: true}

	_, err := h.svc.RequestSMSCode(context.Background(), SMSRequest{Phone: "+1555"})

	assert.True(t, types.IsCode(err, types.ErrCodeConflictVerified))
	assert.Zero(t, h.codes.sends)
}

func TestRequestSMSCode_StoreError(t *testing.T) {
	h := newHarness(nil)
	h.sms.getErr = errors.New("db down")

	_, err := h.svc.RequestSMSCode(context.Background(), SMSRequest{Phone: "+1555"})
	assert.Error(t, err)
	assert.Zero(t, h.codes.sends)
}

func TestRequestSMSCode_RateLimited(t *testing.T) {
	h := newHarness(denyLimiter{})

	_, err := h.svc.RequestSMSCode(context.Background(), SMSRequest{Phone: "+1555"})

	assert.True(t, types.IsCode(err, types.ErrCodeRateLimit))
	assert.Zero(t, h.codes.sends)
}

func TestCheckSMSCode_OnlyApprovedVerifies(t *testing.T) {
	statuses := []types.VerificationStatus{
		types.VerificationDenied,
		types.VerificationExpired,
		types.VerificationPending,
		types.VerificationFailed,
	}
	for _, st := range statuses {
		t.Run(string(st), func(t *testing.T) {
			h := newHarness(nil)
			_, err := h.svc.RequestSMSCode(context.Background(), SMSRequest{Phone: "+1555"})
			require.NoError(t, err)
			h.codes.checkStatus = st

			_, err = h.svc.CheckSMSCode(context.Background(), "+1555", "123456")

			assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidCode))
			assert.False(t, h.sms.subs["+1555"].Verified)
			assert.True(t, h.sms.subs["+1555"].CodePending(), "state stays code-pending")
			assert.Zero(t, h.sms.verifies)
		})
	}
}

func TestCheckSMSCode_Approved(t *testing.T) {
	h := newHarness(nil)
	_, err := h.svc.RequestSMSCode(context.Background(), SMSRequest{Phone: "+1555"})
	require.NoError(t, err)
	h.codes.checkStatus = types.VerificationApproved

	sub, err := h.svc.CheckSMSCode(context.Background(), "+1555", "123456")

	require.NoError(t, err)
	assert.True(t, sub.Verified)
	assert.True(t, sub.Eligible())
}

func TestCheckSMSCode_ProviderError(t *testing.T) {
	h := newHarness(nil)
	_, err := h.svc.RequestSMSCode(context.Background(), SMSRequest{Phone: "+1555"})
	require.NoError(t, err)
	h.codes.checkErr = types.NewAppError(types.ErrCodeUpstreamSMSProvider, "down", nil)

	_, err = h.svc.CheckSMSCode(context.Background(), "+1555", "123456")

	assert.True(t, types.IsCode(err, types.ErrCodeUpstreamSMSProvider))
	assert.False(t, h.sms.subs["+1555"].Verified)
}

func TestCheckSMSCode_NoPendingCode(t *testing.T) {
	h := newHarness(nil)
	h.sms.subs["+1555"] = &types.SMSSubscription{PhoneNumber: "+1555"}

	_, err := h.svc.CheckSMSCode(context.Background(), "+1555", "123456")
	assert.True(t, types.IsNotFound(err))

	_, err = h.svc.CheckSMSCode(context.Background(), "+1999", "123456")
	assert.True(t, types.IsNotFound(err))
	assert.Zero(t, h.codes.checks)
}

func TestCheckSMSCode_EmptyCode(t *testing.T) {
	h := newHarness(nil)
	_, err := h.svc.CheckSMSCode(context.Background(), "+1555", " ")
	assert.True(t, types.IsCode(err, types.ErrCodeValidationInvalidCode))
}

func TestNewToken_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := NewToken()
		require.NoError(t, err)
		assert.Len(t, tok, 64)
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}
