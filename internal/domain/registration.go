package domain

import (
	"fmt"
	"strings"
	"time"
)

// Experience is the self-reported experience level of an attendee.
type Experience string

const (
	ExperienceBeginner     Experience = "beginner"
	ExperienceIntermediate Experience = "intermediate"
	ExperienceAdvanced     Experience = "advanced"
	ExperienceExpert       Experience = "expert"
)

// Valid reports whether e is a known experience level.
func (e Experience) Valid() bool {
	switch e {
	case ExperienceBeginner, ExperienceIntermediate, ExperienceAdvanced, ExperienceExpert:
		return true
	}
	return false
}

// Interest is one of the session tracks an attendee can pick.
type Interest string

const (
	InterestAITrading            Interest = "ai-trading"
	InterestRiskManagement       Interest = "risk-management"
	InterestFraudDetection       Interest = "fraud-detection"
	InterestRoboAdvisors         Interest = "robo-advisors"
	InterestRegulatoryCompliance Interest = "regulatory-compliance"
)

// RegistrationStatus is the attendance state of a registration.
type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "registered"
	RegistrationConfirmed  RegistrationStatus = "confirmed"
	RegistrationCancelled  RegistrationStatus = "cancelled"
	RegistrationAttended   RegistrationStatus = "attended"
)

// Valid reports whether s is a known status.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationRegistered, RegistrationConfirmed, RegistrationCancelled, RegistrationAttended:
		return true
	}
	return false
}

// RegistrationMetadata extends the request metadata with event details.
type RegistrationMetadata struct {
	RequestMetadata
	EventID string             `json:"eventId"`
	Status  RegistrationStatus `json:"status"`
}

// Registration is a conference registration.
type Registration struct {
	ID                      string               `json:"id"`
	RegistrationID          string               `json:"registrationId"`
	RegistrationNumber      string               `json:"registrationNumber"`
	FirstName               string               `json:"firstName"`
	LastName                string               `json:"lastName"`
	Email                   string               `json:"email"`
	Phone                   string               `json:"phone"`
	Company                 string               `json:"company,omitempty"`
	JobTitle                string               `json:"jobTitle,omitempty"`
	Experience              Experience           `json:"experience"`
	Interests               []Interest           `json:"interests"`
	Expectations            string               `json:"expectations,omitempty"`
	Newsletter              bool                 `json:"newsletter"`
	Terms                   bool                 `json:"terms"`
	ConfirmationEmailSent   bool                 `json:"confirmationEmailSent"`
	ConfirmationEmailSentAt *time.Time           `json:"confirmationEmailSentAt,omitempty"`
	AdminNotified           bool                 `json:"adminNotified"`
	AdminNotifiedAt         *time.Time           `json:"adminNotifiedAt,omitempty"`
	Metadata                RegistrationMetadata `json:"metadata"`
	CreatedAt               time.Time            `json:"createdAt"`
	UpdatedAt               time.Time            `json:"updatedAt"`
}

// FullName joins first and last name.
func (r *Registration) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// RegistrationInput is the user-supplied part of a registration.
type RegistrationInput struct {
	FirstName    string   `json:"firstName" validate:"required,min=2,max=50,personname"`
	LastName     string   `json:"lastName" validate:"required,min=2,max=50,personname"`
	Email        string   `json:"email" validate:"required,email,max=320"`
	Phone        string   `json:"phone" validate:"required,min=7,max=25,phone"`
	Company      string   `json:"company" validate:"max=100"`
	JobTitle     string   `json:"jobTitle" validate:"max=100"`
	Experience   string   `json:"experience" validate:"required,oneof=beginner intermediate advanced expert"`
	Interests    []string `json:"interests" validate:"omitempty,dive,oneof=ai-trading risk-management fraud-detection robo-advisors regulatory-compliance"`
	Expectations string   `json:"expectations" validate:"max=1000"`
	Newsletter   bool     `json:"newsletter"`
	Terms        bool     `json:"terms" validate:"required"`
}

// NewRegistration builds a registration in the registered state. The
// registration number is assigned by the caller.
func NewRegistration(in RegistrationInput, meta RequestMetadata, eventID string, now time.Time) *Registration {
	interests := make([]Interest, 0, len(in.Interests))
	for _, i := range in.Interests {
		interests = append(interests, Interest(i))
	}
	return &Registration{
		ID:             NewInternalID(),
		RegistrationID: NewToken(),
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Email:          NormalizeEmail(in.Email),
		Phone:          in.Phone,
		Company:        in.Company,
		JobTitle:       in.JobTitle,
		Experience:     Experience(in.Experience),
		Interests:      interests,
		Expectations:   in.Expectations,
		Newsletter:     in.Newsletter,
		Terms:          in.Terms,
		Metadata: RegistrationMetadata{
			RequestMetadata: meta.WithDefaults(SourceRegistration, now),
			EventID:         eventID,
			Status:          RegistrationRegistered,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FormatRegistrationNumber renders <PREFIX><year><4-digit n>. The prefix is
// upper-cased so the number matches NormalizeRegistrationNumber.
func FormatRegistrationNumber(prefix string, year, n int) string {
	return fmt.Sprintf("%s%d%04d", strings.ToUpper(strings.TrimSpace(prefix)), year, n%10000)
}

// NormalizeRegistrationNumber upper-cases a registration number for lookup.
func NormalizeRegistrationNumber(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// RegistrationView is a registration plus state derived at read time.
type RegistrationView struct {
	*Registration
	NewsletterSubscribed bool `json:"newsletterSubscribed"`
}

// RegistrationStats aggregates registrations for the dashboard.
type RegistrationStats struct {
	Total             int            `json:"total"`
	Registered        int            `json:"registered"`
	Confirmed         int            `json:"confirmed"`
	Cancelled         int            `json:"cancelled"`
	Attended          int            `json:"attended"`
	ConfirmationsSent int            `json:"confirmationsSent"`
	AdminNotified     int            `json:"adminNotified"`
	NewsletterOptIns  int            `json:"newsletterOptIns"`
	ByExperience      map[string]int `json:"byExperience"`
}
