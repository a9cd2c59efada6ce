package domain

import "time"

// RequestMetadata records where a public submission came from.
type RequestMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"userAgent,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
	Source    string    `json:"source"`
}

// Default source tags.
const (
	SourceContactForm     = "contact_form"
	SourceRegistration    = "conference_registration"
	SourceNewsletter      = "newsletter_subscription"
	SourceAdminDashboard  = "admin_dashboard"
	SourceRegistrationOpt = "registration_form"
)

// WithDefaults fills an empty source and a zero timestamp.
func (m RequestMetadata) WithDefaults(source string, now time.Time) RequestMetadata {
	if m.Source == "" {
		m.Source = source
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	return m
}
