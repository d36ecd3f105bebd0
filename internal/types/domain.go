package types

import (
	"strings"
	"time"
)

// Case is a missing-child record, the entity subscribers are alerted about.
// CaseNumber is assigned by the store at creation and never changes.
type Case struct {
	ID                  string     `json:"id" db:"id"`
	CaseNumber          string     `json:"case_number" db:"case_number"`
	FirstName           string     `json:"first_name" db:"first_name"`
	LastName            string     `json:"last_name" db:"last_name"`
	Age                 int        `json:"age" db:"age"`
	Gender              Gender     `json:"gender" db:"gender"`
	Height              string     `json:"height,omitempty" db:"height"`
	Weight              string     `json:"weight,omitempty" db:"weight"`
	EyeColor            string     `json:"eye_color,omitempty" db:"eye_color"`
	HairColor           string     `json:"hair_color,omitempty" db:"hair_color"`
	LastSeenAt          time.Time  `json:"last_seen_at" db:"last_seen_at"`
	LastSeenLocation    string     `json:"last_seen_location" db:"last_seen_location"`
	LastSeenWearing     string     `json:"last_seen_wearing,omitempty" db:"last_seen_wearing"`
	DistinctiveFeatures string     `json:"distinctive_features,omitempty" db:"distinctive_features"`
	PhotoURL            string     `json:"photo_url,omitempty" db:"photo_url"`
	Status              CaseStatus `json:"status" db:"status"`
	IsAbducted          bool       `json:"is_abducted" db:"is_abducted"`
	ReportedBy          *string    `json:"reported_by,omitempty" db:"reported_by"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`

	// Hydrated for the detail view only.
	Abductor  *AbductorInformation `json:"abductor,omitempty" db:"-"`
	Sightings []*Sighting          `json:"sightings,omitempty" db:"-"`
}

// FullName joins first and last name, tolerating blanks.
func (c *Case) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// AbductorInformation is the optional 1-1 suspect record attached to a Case.
type AbductorInformation struct {
	CaseID             string    `json:"case_id" db:"case_id"`
	Description        string    `json:"description" db:"description"`
	VehicleDescription string    `json:"vehicle_description,omitempty" db:"vehicle_description"`
	VehiclePlate       string    `json:"vehicle_plate,omitempty" db:"vehicle_plate"`
	LastSeenDirection  string    `json:"last_seen_direction,omitempty" db:"last_seen_direction"`
	KnownAssociates    string    `json:"known_associates,omitempty" db:"known_associates"`
	AddedBy            *string   `json:"added_by,omitempty" db:"added_by"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// Sighting is a location update reported for a Case. Verified starts false
// and is flipped only by staff review.
type Sighting struct {
	ID            string    `json:"id" db:"id"`
	CaseID        string    `json:"case_id" db:"case_id"`
	Location      string    `json:"location" db:"location"`
	SightingTime  time.Time `json:"sighting_time" db:"sighting_time"`
	ReportedBy    string    `json:"reported_by" db:"reported_by"`
	ContactNumber string    `json:"contact_number,omitempty" db:"contact_number"`
	Description   string    `json:"description" db:"description"`
	Verified      bool      `json:"verified" db:"verified"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Lead is a public tip about a Case, triaged by staff.
type Lead struct {
	ID            string     `json:"id" db:"id"`
	CaseID        string     `json:"case_id" db:"case_id"`
	ReportedBy    *string    `json:"reported_by,omitempty" db:"reported_by"`
	ReporterName  string     `json:"reporter_name" db:"reporter_name"`
	ReporterEmail string     `json:"reporter_email" db:"reporter_email"`
	ReporterPhone string     `json:"reporter_phone" db:"reporter_phone"`
	Information   string     `json:"information" db:"information"`
	EvidenceURL   string     `json:"evidence_url,omitempty" db:"evidence_url"`
	Status        LeadStatus `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// EmailSubscription receives case alerts by mail once Subscribed and Verified
// are both true. VerificationToken is empty once consumed.
type EmailSubscription struct {
	ID                string    `json:"id" db:"id"`
	Email             string    `json:"email" db:"email"`
	Location          string    `json:"location,omitempty" db:"location"`
	Subscribed        bool      `json:"subscribed" db:"subscribed"`
	Verified          bool      `json:"verified" db:"verified"`
	VerificationToken string    `json:"-" db:"verification_token"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// Eligible reports whether the subscription may receive alert mail.
func (s *EmailSubscription) Eligible() bool {
	return s.Subscribed && s.Verified
}

// SMSSubscription receives case alerts and digests by text once Verified and
// Active. A non-nil VerificationSentAt on an unverified record means a code
// is pending at the provider.
type SMSSubscription struct {
	ID                 string          `json:"id" db:"id"`
	PhoneNumber        string          `json:"phone_number" db:"phone_number"`
	Verified           bool            `json:"verified" db:"verified"`
	VerificationSentAt *time.Time      `json:"verification_sent_at,omitempty" db:"verification_sent_at"`
	Location           string          `json:"location,omitempty" db:"location"`
	RadiusMiles        int             `json:"radius_miles" db:"radius_miles"`
	DigestFrequency    DigestFrequency `json:"digest_frequency" db:"digest_frequency"`
	Active             bool            `json:"active" db:"active"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}

// Eligible reports whether the subscription may receive alert texts.
func (s *SMSSubscription) Eligible() bool {
	return s.Verified && s.Active
}

// CodePending reports whether a verification code has been issued and not
// yet approved.
func (s *SMSSubscription) CodePending() bool {
	return !s.Verified && s.VerificationSentAt != nil
}

// EmergencyContact is presentation-only metadata listed on the public site.
type EmergencyContact struct {
	ID           string `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Organization string `json:"organization" db:"organization"`
	Phone        string `json:"phone" db:"phone"`
	Email        string `json:"email,omitempty" db:"email"`
	Website      string `json:"website,omitempty" db:"website"`
	Region       string `json:"region" db:"region"`
	Order        int    `json:"order" db:"display_order"`
	Active       bool   `json:"active" db:"active"`
}

// CaseFilter narrows case listings. Zero values mean "no constraint".
type CaseFilter struct {
	Query    string
	Status   CaseStatus
	Gender   Gender
	Location string
	AgeMin   *int
	AgeMax   *int
	Limit    int
	Offset   int
}

// DeliveryResult is the outcome of one send to one recipient.
type DeliveryResult struct {
	Channel    ChannelType `json:"channel"`
	Recipient  string      `json:"recipient"`
	Success    bool        `json:"success"`
	ProviderID string      `json:"provider_id,omitempty"`
	Code       ErrorCode   `json:"code,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// FailedDelivery builds a failed DeliveryResult from err.
func FailedDelivery(channel ChannelType, recipient string, err error) DeliveryResult {
	r := DeliveryResult{Channel: channel, Recipient: recipient, Code: CodeOf(err)}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// AlertLogEntry is one audit row per recipient attempt. It records what was
// sent, it does not deduplicate later dispatches.
type AlertLogEntry struct {
	EventKind  EventKind   `db:"event_kind"`
	EventID    string      `db:"event_id"`
	Channel    ChannelType `db:"channel"`
	Recipient  string      `db:"recipient"`
	Success    bool        `db:"success"`
	ProviderID string      `db:"provider_id"`
	Error      string      `db:"error"`
	CreatedAt  time.Time   `db:"created_at"`
}

// SenderIdentity is the From address for outgoing mail.
type SenderIdentity struct {
	Address string
	Name    string
}

// SendInput is the provider-neutral email payload.
type SendInput struct {
	To      string
	From    SenderIdentity
	Subject string
	Body    string
}
