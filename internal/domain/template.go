package domain

import "time"

// EmailTemplate is an admin-authored template used by bulk campaigns. Subject
// and body are Liquid templates.
type EmailTemplate struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
	CreatedBy  string     `json:"createdBy"`
	UsageCount int        `json:"usageCount"`
	LastUsed   *time.Time `json:"lastUsed,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// TemplateInput is the admin-supplied part of a template.
type TemplateInput struct {
	Name    string `json:"name" validate:"omitempty,max=100"`
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body" validate:"required,max=100000"`
}
