// Package selector picks the subscriptions eligible for one dispatch. It is
// a pure read of the store at call time; nothing is cached between calls.
package selector

import (
	"context"
	"fmt"
	"strings"

	"amberline/internal/types"
)

// EmailStore lists email subscriptions that are subscribed and verified.
type EmailStore interface {
	ListEligibleEmail(ctx context.Context) ([]*types.EmailSubscription, error)
}

// SMSStore lists SMS subscriptions that are verified and active.
type SMSStore interface {
	ListEligibleSMS(ctx context.Context) ([]*types.SMSSubscription, error)
	ListDigestSMS(ctx context.Context, freq types.DigestFrequency) ([]*types.SMSSubscription, error)
}

// Selector applies eligibility and location narrowing on top of the store.
// The flag predicates are re-checked here so a looser store query can never
// leak an unverified or inactive record into a dispatch.
type Selector struct {
	email EmailStore
	sms   SMSStore
}

// New creates a Selector.
func New(email EmailStore, sms SMSStore) *Selector {
	return &Selector{email: email, sms: sms}
}

// SelectEmailSubscribers returns subscribed+verified subscriptions whose
// location filter matches the case's last known location.
func (s *Selector) SelectEmailSubscribers(ctx context.Context, c *types.Case) ([]*types.EmailSubscription, error) {
	all, err := s.email.ListEligibleEmail(ctx)
	if err != nil {
		return nil, fmt.Errorf("list email subscriptions: %w", err)
	}
	caseLocation := ""
	if c != nil {
		caseLocation = c.LastSeenLocation
	}
	out := make([]*types.EmailSubscription, 0, len(all))
	for _, sub := range all {
		if sub == nil || !sub.Eligible() {
			continue
		}
		if !LocationMatches(sub.Location, caseLocation) {
			continue
		}
		out = append(out, sub)
	}
	return out, nil
}

// SelectSMSSubscribers returns verified+active subscriptions. An empty
// location applies no narrowing.
func (s *Selector) SelectSMSSubscribers(ctx context.Context, location string) ([]*types.SMSSubscription, error) {
	all, err := s.sms.ListEligibleSMS(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sms subscriptions: %w", err)
	}
	return filterSMS(all, location), nil
}

// SelectDigestSubscribers returns verified+active subscriptions whose digest
// preference equals freq.
func (s *Selector) SelectDigestSubscribers(ctx context.Context, freq types.DigestFrequency) ([]*types.SMSSubscription, error) {
	all, err := s.sms.ListDigestSMS(ctx, freq)
	if err != nil {
		return nil, fmt.Errorf("list digest subscriptions: %w", err)
	}
	out := make([]*types.SMSSubscription, 0, len(all))
	for _, sub := range filterSMS(all, "") {
		if sub.DigestFrequency == freq {
			out = append(out, sub)
		}
	}
	return out, nil
}

func filterSMS(all []*types.SMSSubscription, location string) []*types.SMSSubscription {
	out := make([]*types.SMSSubscription, 0, len(all))
	for _, sub := range all {
		if sub == nil || !sub.Eligible() {
			continue
		}
		if !LocationMatches(sub.Location, location) {
			continue
		}
		out = append(out, sub)
	}
	return out
}

// LocationMatches is the naive location policy: blank on either side
// matches everything, otherwise one value must contain the other,
// ignoring case and surrounding whitespace.
func LocationMatches(filter, location string) bool {
	f := strings.ToLower(strings.TrimSpace(filter))
	l := strings.ToLower(strings.TrimSpace(location))
	if f == "" || l == "" {
		return true
	}
	return strings.Contains(l, f) || strings.Contains(f, l)
}

// EmailAddresses extracts the address of each subscription.
func EmailAddresses(subs []*types.EmailSubscription) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.Email)
	}
	return out
}

// PhoneNumbers extracts the number of each subscription.
func PhoneNumbers(subs []*types.SMSSubscription) []string {
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.PhoneNumber)
	}
	return out
}
