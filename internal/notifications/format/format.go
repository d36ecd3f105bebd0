// Package format turns cases and sightings into channel text. Every function
// here is pure: no I/O, no clock, no failure on blank optional fields.
package format

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"
	"unicode"
	"unicode/utf16"

	"amberline/internal/types"
)

//go:embed templates/*.txt
var templateFS embed.FS

var textTemplates = template.Must(template.ParseFS(templateFS, "templates/*.txt"))

// MaxSMSLength is the longest SMS body handed to the provider, counted in
// UTF-16 code units the way the provider counts characters: an emoji
// outside the BMP costs two. Twilio rejects messages beyond 1600.
const MaxSMSLength = 1600

// TruncationMarker ends every body that was cut to fit MaxSMSLength.
const TruncationMarker = "..."

const (
	abductionWarning = "⚠️ SUSPECTED ABDUCTION ⚠️"
	timeLayout       = "2006-01-02 15:04"
)

// CaseAlert is the rendered content for one case on both channels.
type CaseAlert struct {
	Subject   string
	EmailBody string
	SMSBody   string
}

// Formatter renders alert text. BaseURL prefixes public case links.
type Formatter struct {
	BaseURL string
}

// New returns a Formatter linking to baseURL (trailing slash ignored).
func New(baseURL string) Formatter {
	return Formatter{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

// CaseURL is the public detail link for a case.
func (f Formatter) CaseURL(c *types.Case) string {
	return f.BaseURL + "/cases/" + c.ID
}

// CaseAlert renders the email and SMS variants of a new-case alert.
func (f Formatter) CaseAlert(c *types.Case) CaseAlert {
	return CaseAlert{
		Subject:   "URGENT: Missing Child Alert - " + c.FullName(),
		EmailBody: f.caseEmailBody(c),
		SMSBody:   TruncateSMS(f.caseSMSBody(c)),
	}
}

func (f Formatter) caseSMSBody(c *types.Case) string {
	var b strings.Builder
	b.WriteString("🚨 MISSING CHILD ALERT 🚨\n\n")
	fmt.Fprintf(&b, "Name: %s\n", c.FullName())
	fmt.Fprintf(&b, "Age: %d\n", c.Age)
	fmt.Fprintf(&b, "Missing since: %s\n", formatTime(c.LastSeenAt))
	fmt.Fprintf(&b, "Last seen: %s\n", c.LastSeenLocation)
	if c.IsAbducted {
		b.WriteString(abductionWarning + "\n")
	}
	b.WriteString("\nIf seen, call 911 immediately.\n")
	fmt.Fprintf(&b, "Case #%s\n", c.CaseNumber)
	fmt.Fprintf(&b, "More info: %s", f.CaseURL(c))
	return b.String()
}

type caseEmailData struct {
	Abducted         bool
	AbductionWarning string
	Name             string
	Age              int
	LastSeenLocation string
	LastSeenAt       string
	Wearing          string
	Description      string
	CaseNumber       string
	CaseURL          string
}

func (f Formatter) caseEmailBody(c *types.Case) string {
	return render("case_alert.txt", caseEmailData{
		Abducted:         c.IsAbducted,
		AbductionWarning: abductionWarning,
		Name:             c.FullName(),
		Age:              c.Age,
		LastSeenLocation: c.LastSeenLocation,
		LastSeenAt:       formatTime(c.LastSeenAt),
		Wearing:          c.LastSeenWearing,
		Description:      c.DistinctiveFeatures,
		CaseNumber:       c.CaseNumber,
		CaseURL:          f.CaseURL(c),
	})
}

// SightingAlert renders the SMS sent when staff verify a sighting.
func (f Formatter) SightingAlert(c *types.Case, s *types.Sighting) string {
	var b strings.Builder
	b.WriteString("📍 SIGHTING UPDATE 🚨\n\n")
	fmt.Fprintf(&b, "%s\n", c.FullName())
	fmt.Fprintf(&b, "Reported at: %s\n", formatTime(s.SightingTime))
	fmt.Fprintf(&b, "Location: %s\n", s.Location)
	fmt.Fprintf(&b, "Reported by: %s\n", s.ReportedBy)
	fmt.Fprintf(&b, "Case #%s\n", c.CaseNumber)
	b.WriteString("\nIf in area, stay alert.\nCall 911 if sighted.")
	return TruncateSMS(b.String())
}

// Digest renders one combined SMS for cases. Callers skip sending when cases
// is empty; Digest itself still returns the header and footer.
func (f Formatter) Digest(cases []*types.Case) string {
	var b strings.Builder
	b.WriteString("📋 Daily Missing Children Digest\n\n")
	for _, c := range cases {
		fmt.Fprintf(&b, "• %s, %d\n", c.FullName(), c.Age)
		fmt.Fprintf(&b, "  Missing from: %s\n", c.LastSeenLocation)
		fmt.Fprintf(&b, "  Case #%s\n\n", c.CaseNumber)
	}
	b.WriteString("Stay vigilant in your community.\nReport sightings to 911.")
	return TruncateSMS(b.String())
}

// VerificationEmail renders the subscribe confirmation mail.
func (f Formatter) VerificationEmail(token string) (subject, body string) {
	link := f.BaseURL + "/verify-email/" + token + "/"
	return "Verify your email for Missing Child Alerts",
		render("verification.txt", struct{ Link string }{link})
}

// render executes an embedded template. The templates are fixed and only
// read plain fields, so execution cannot fail on well-formed data.
func render(name string, data any) string {
	var buf bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		panic(fmt.Sprintf("format: template %s: %v", name, err))
	}
	return buf.String()
}

// SMSLength is the length of body as the provider counts it, in UTF-16
// code units.
func SMSLength(body string) int {
	n := 0
	for _, r := range body {
		n += utf16.RuneLen(r)
	}
	return n
}

// TruncateSMS caps body at MaxSMSLength units (see SMSLength). Longer
// bodies are cut and end in TruncationMarker. The cut never splits a
// character and never leaves a dangling joiner or variation selector.
func TruncateSMS(body string) string {
	if SMSLength(body) <= MaxSMSLength {
		return body
	}

	budget := MaxSMSLength - SMSLength(TruncationMarker)
	keep := make([]rune, 0, budget)
	used := 0
	for _, r := range body {
		w := utf16.RuneLen(r)
		if used+w > budget {
			break
		}
		keep = append(keep, r)
		used += w
	}
	for len(keep) > 0 && isModifier(keep[len(keep)-1]) {
		keep = keep[:len(keep)-1]
	}
	return string(keep) + TruncationMarker
}

func isModifier(r rune) bool {
	return r == '\u200d' ||
		(r >= '\ufe00' && r <= '\ufe0f') ||
		unicode.Is(unicode.Mn, r)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}
