package domain

import "time"

// ContactStatus is the processing state of a contact submission.
type ContactStatus string

const (
	ContactPending   ContactStatus = "pending"
	ContactProcessed ContactStatus = "processed"
	ContactResponded ContactStatus = "responded"
)

var contactRank = map[ContactStatus]int{
	ContactPending:   0,
	ContactProcessed: 1,
	ContactResponded: 2,
}

// Valid reports whether s is a known status.
func (s ContactStatus) Valid() bool {
	_, ok := contactRank[s]
	return ok
}

// ContactStatusesUpTo returns every status a record may be in for a move to
// next to be allowed. Statuses only move forward; staying put is allowed.
func ContactStatusesUpTo(next ContactStatus) []ContactStatus {
	out := make([]ContactStatus, 0, len(contactRank))
	for _, s := range []ContactStatus{ContactPending, ContactProcessed, ContactResponded} {
		if contactRank[s] <= contactRank[next] {
			out = append(out, s)
		}
	}
	return out
}

// CanMoveTo reports whether a status change from s to next is allowed.
func (s ContactStatus) CanMoveTo(next ContactStatus) bool {
	return next.Valid() && contactRank[next] >= contactRank[s]
}

// Contact is a contact-form submission.
type Contact struct {
	ID              string          `json:"id"`
	ContactID       string          `json:"contactId"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Subject         string          `json:"subject"`
	Message         string          `json:"message"`
	Status          ContactStatus   `json:"status"`
	EmailSent       bool            `json:"emailSent"`
	EmailSentAt     *time.Time      `json:"emailSentAt,omitempty"`
	AdminNotified   bool            `json:"adminNotified"`
	AdminNotifiedAt *time.Time      `json:"adminNotifiedAt,omitempty"`
	Metadata        RequestMetadata `json:"metadata"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ContactInput is the user-supplied part of a contact submission.
type ContactInput struct {
	Name    string `json:"name" validate:"required,min=2,max=100,personname"`
	Email   string `json:"email" validate:"required,email,max=320"`
	Phone   string `json:"phone" validate:"required,min=7,max=25,phone"`
	Subject string `json:"subject" validate:"required,min=5,max=200"`
	Message string `json:"message" validate:"required,min=10,max=2000"`
}

// NewContact builds a pending contact from validated input.
func NewContact(in ContactInput, meta RequestMetadata, now time.Time) *Contact {
	return &Contact{
		ID:        NewInternalID(),
		ContactID: NewToken(),
		Name:      in.Name,
		Email:     NormalizeEmail(in.Email),
		Phone:     in.Phone,
		Subject:   in.Subject,
		Message:   in.Message,
		Status:    ContactPending,
		Metadata:  meta.WithDefaults(SourceContactForm, now),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ContactStats aggregates contacts for the dashboard.
type ContactStats struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	Processed     int `json:"processed"`
	Responded     int `json:"responded"`
	EmailsSent    int `json:"emailsSent"`
	AdminNotified int `json:"adminNotified"`
}
