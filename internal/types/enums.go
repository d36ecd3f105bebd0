package types

// CaseStatus is the soft lifecycle of a Case. Cases are never hard-deleted.
type CaseStatus string

const (
	CaseStatusMissing CaseStatus = "missing"
	CaseStatusFound   CaseStatus = "found"
	CaseStatusLocated CaseStatus = "located"
)

// Valid reports whether s is one of the known statuses.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseStatusMissing, CaseStatusFound, CaseStatusLocated:
		return true
	}
	return false
}

// Gender as recorded on the case intake form.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
	GenderOther  Gender = "O"
)

// LeadStatus is the staff-driven triage state of a Lead.
type LeadStatus string

const (
	LeadStatusNew           LeadStatus = "new"
	LeadStatusInReview      LeadStatus = "in_review"
	LeadStatusInvestigating LeadStatus = "investigating"
	LeadStatusVerified      LeadStatus = "verified"
	LeadStatusFalse         LeadStatus = "false"
)

// Valid reports whether s is one of the known lead statuses.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusInReview, LeadStatusInvestigating, LeadStatusVerified, LeadStatusFalse:
		return true
	}
	return false
}

// DigestFrequency is an SMS subscriber's digest preference.
type DigestFrequency string

const (
	DigestNone   DigestFrequency = "none"
	DigestDaily  DigestFrequency = "daily"
	DigestWeekly DigestFrequency = "weekly"
)

// Valid reports whether f is one of the known frequencies.
func (f DigestFrequency) Valid() bool {
	switch f {
	case DigestNone, DigestDaily, DigestWeekly:
		return true
	}
	return false
}

// ChannelType identifies a delivery channel.
type ChannelType string

const (
	ChannelEmail ChannelType = "email"
	ChannelSMS   ChannelType = "sms"
)

// VerificationStatus is the provider-reported state of an SMS verification.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationDenied   VerificationStatus = "denied"
	VerificationExpired  VerificationStatus = "expired"
	VerificationFailed   VerificationStatus = "failed"
)

// EventKind names the trigger of a dispatch.
type EventKind string

const (
	EventCaseCreated      EventKind = "case_created"
	EventSightingVerified EventKind = "sighting_verified"
	EventDigest           EventKind = "digest"
)
