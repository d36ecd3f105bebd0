package selector

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amberline/internal/types"
)

// fakeStore returns its records unfiltered, standing in for a store whose
// query is looser than the eligibility predicates.
type fakeStore struct {
	email    []*types.EmailSubscription
	sms      []*types.SMSSubscription
	err      error
	lastFreq types.DigestFrequency
}

func (f *fakeStore) ListEligibleEmail(context.Context) ([]*types.EmailSubscription, error) {
	return f.email, f.err
}

func (f *fakeStore) ListEligibleSMS(context.Context) ([]*types.SMSSubscription, error) {
	return f.sms, f.err
}

func (f *fakeStore) ListDigestSMS(_ context.Context, freq types.DigestFrequency) ([]*types.SMSSubscription, error) {
	f.lastFreq = freq
	return f.sms, f.err
}

func TestSelectEmailSubscribers_Springfield(t *testing.T) {
	store := &fakeStore{email: []*types.EmailSubscription{
		{Email: "yes@example.com", Location: "Springfield", Subscribed: true, Verified: true},
		{Email: "unverified@example.com", Location: "Springfield", Subscribed: true, Verified: false},
		{Email: "elsewhere@example.com", Location: "Shelbyville", Subscribed: true, Verified: true},
		{Email: "anywhere@example.com", Location: "", Subscribed: true, Verified: true},
	}}
	s := New(store, store)

	got, err := s.SelectEmailSubscribers(context.Background(), &types.Case{LastSeenLocation: "Main St, Springfield"})

	require.NoError(t, err)
	assert.Equal(t, []string{"yes@example.com", "anywhere@example.com"}, EmailAddresses(got))
}

func TestSelectEmailSubscribers_CaseWithoutLocationMatchesAll(t *testing.T) {
	store := &fakeStore{email: []*types.EmailSubscription{
		{Email: "a@example.com", Location: "Springfield", Subscribed: true, Verified: true},
		{Email: "b@example.com", Location: "Shelbyville", Subscribed: true, Verified: true},
	}}
	got, err := New(store, store).SelectEmailSubscribers(context.Background(), &types.Case{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSelectEmailSubscribers_StoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	_, err := New(store, store).SelectEmailSubscribers(context.Background(), &types.Case{})
	assert.Error(t, err)
}

func TestSelectSMSSubscribers_LocationNarrowing(t *testing.T) {
	store := &fakeStore{sms: []*types.SMSSubscription{
		{PhoneNumber: "+1", Location: "springfield", Verified: true, Active: true},
		{PhoneNumber: "+2", Location: "Capital City", Verified: true, Active: true},
		{PhoneNumber: "+3", Location: "", Verified: true, Active: true},
	}}
	s := New(store, store)

	got, err := s.SelectSMSSubscribers(context.Background(), "SPRINGFIELD Mall")
	require.NoError(t, err)
	assert.Equal(t, []string{"+1", "+3"}, PhoneNumbers(got))

	got, err = s.SelectSMSSubscribers(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSelectSMSSubscribers_NeverIneligible(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		var subs []*types.SMSSubscription
		for i := 0; i < 20; i++ {
			subs = append(subs, &types.SMSSubscription{
				PhoneNumber: fmt.Sprintf("+1555%04d", i),
				Verified:    rng.Intn(2) == 0,
				Active:      rng.Intn(2) == 0,
			})
		}
		store := &fakeStore{sms: subs}
		got, err := New(store, store).SelectSMSSubscribers(context.Background(), "")
		require.NoError(t, err)

		want := 0
		for _, s := range subs {
			if s.Verified && s.Active {
				want++
			}
		}
		assert.Len(t, got, want)
		for _, s := range got {
			assert.True(t, s.Verified, "round %d: %s unverified", round, s.PhoneNumber)
			assert.True(t, s.Active, "round %d: %s inactive", round, s.PhoneNumber)
		}
	}
}

func TestSelectEmailSubscribers_NeverIneligible(t *testing.T) {
	var subs []*types.EmailSubscription
	for _, subscribed := range []bool{true, false} {
		for _, verified := range []bool{true, false} {
			subs = append(subs, &types.EmailSubscription{
				Email:      fmt.Sprintf("%t-%t@example.com", subscribed, verified),
				Subscribed: subscribed,
				Verified:   verified,
			})
		}
	}
	store := &fakeStore{email: subs}
	got, err := New(store, store).SelectEmailSubscribers(context.Background(), &types.Case{})
	require.NoError(t, err)
	assert.Equal(t, []string{"true-true@example.com"}, EmailAddresses(got))
}

func TestSelectDigestSubscribers(t *testing.T) {
	store := &fakeStore{sms: []*types.SMSSubscription{
		{PhoneNumber: "+1", Verified: true, Active: true, DigestFrequency: types.DigestDaily},
		{PhoneNumber: "+2", Verified: true, Active: true, DigestFrequency: types.DigestWeekly},
		{PhoneNumber: "+3", Verified: true, Active: false, DigestFrequency: types.DigestDaily},
		{PhoneNumber: "+4", Verified: true, Active: true, DigestFrequency: types.DigestNone},
	}}
	got, err := New(store, store).SelectDigestSubscribers(context.Background(), types.DigestDaily)
	require.NoError(t, err)
	assert.Equal(t, []string{"+1"}, PhoneNumbers(got))
	assert.Equal(t, types.DigestDaily, store.lastFreq)
}

func TestLocationMatches(t *testing.T) {
	tests := []struct {
		filter, location string
		want             bool
	}{
		{"", "Main St, Springfield", true},
		{"Springfield", "", true},
		{"springfield", "Main St, SPRINGFIELD", true},
		{"Main St, Springfield", "Springfield", true},
		{"Shelbyville", "Main St, Springfield", false},
		{"  ", "anything", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LocationMatches(tt.filter, tt.location), "%q vs %q", tt.filter, tt.location)
	}
}
