package api

import (
	"net/http"
	"strings"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/pkg/httputil"
)

// SubmitContact handles the public contact form.
//
//	POST /api/contact
func (h *Handlers) SubmitContact(w http.ResponseWriter, r *http.Request) {
	var in domain.ContactInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.contacts.Submit(r.Context(), in, requestMeta(r))
	if err != nil {
		respondError(w, err, messages{failed: "An error occurred while processing your request. Please try again later."})
		return
	}
	httputil.Created(w, "Contact form submitted successfully. We will get back to you soon!", map[string]interface{}{
		"id":        c.ContactID,
		"timestamp": c.Metadata.Timestamp,
	})
}

// ContactStats returns contact counters and the latest submissions.
//
//	GET /api/contact/stats
func (h *Handlers) ContactStats(w http.ResponseWriter, r *http.Request) {
	failed := messages{failed: "Failed to fetch contact statistics"}
	st, err := h.contacts.Stats(r.Context())
	if err != nil {
		respondError(w, err, failed)
		return
	}
	recent, err := h.contacts.Recent(r.Context(), recentContacts)
	if err != nil {
		respondError(w, err, failed)
		return
	}
	httputil.OK(w, "", map[string]interface{}{"statistics": st, "recentContacts": recent})
}

// SubmitRegistration handles the public conference registration form.
//
//	POST /api/register
func (h *Handlers) SubmitRegistration(w http.ResponseWriter, r *http.Request) {
	var in domain.RegistrationInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	reg, err := h.registrations.Submit(r.Context(), in, requestMeta(r))
	if err != nil {
		respondError(w, err, messages{failed: "An error occurred while processing your registration. Please try again later."})
		return
	}
	ev := h.registrations.Event()
	httputil.Created(w, "Registration completed successfully! Check your email for confirmation details.", map[string]interface{}{
		"registrationId":     reg.RegistrationID,
		"registrationNumber": reg.RegistrationNumber,
		"timestamp":          reg.Metadata.Timestamp,
		"eventDetails": map[string]string{
			"name":     ev.Name,
			"date":     ev.Date,
			"location": ev.Location,
		},
	})
}

// VerifyRegistration looks a registration up by its public id or number.
//
//	GET /api/register/verify/{id}
func (h *Handlers) VerifyRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registrations.Verify(r.Context(), idParam(r))
	if err != nil {
		respondError(w, err, messages{notFound: "Registration not found", failed: "Failed to verify registration"})
		return
	}
	httputil.OK(w, "Registration found", map[string]interface{}{
		"registrationId":     reg.RegistrationID,
		"registrationNumber": reg.RegistrationNumber,
		"name":               reg.FullName(),
		"email":              reg.Email,
		"status":             reg.Metadata.Status,
		"registeredAt":       reg.Metadata.Timestamp,
	})
}

// RegistrationStats returns registration counters and the latest sign-ups.
//
//	GET /api/register/stats
func (h *Handlers) RegistrationStats(w http.ResponseWriter, r *http.Request) {
	failed := messages{failed: "Failed to fetch registration statistics"}
	st, err := h.registrations.Stats(r.Context())
	if err != nil {
		respondError(w, err, failed)
		return
	}
	recent, err := h.registrations.Recent(r.Context(), recentRegistrations)
	if err != nil {
		respondError(w, err, failed)
		return
	}
	httputil.OK(w, "", map[string]interface{}{
		"statistics":          st,
		"experienceBreakdown": st.ByExperience,
		"recentRegistrations": recent,
	})
}

// Subscribe handles the public newsletter form.
//
//	POST /api/newsletter
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var in domain.SubscribeInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	in.Metadata = withRequestMeta(in.Metadata, r)
	sub, err := h.newsletter.Subscribe(r.Context(), in)
	if err != nil {
		respondError(w, err, messages{failed: "An error occurred while processing your subscription. Please try again later."})
		return
	}
	httputil.Created(w, "Successfully subscribed to newsletter! Check your email for confirmation.", map[string]interface{}{
		"subscriptionId": sub.SubscriptionID,
		"timestamp":      sub.Metadata.Timestamp,
	})
}

// withRequestMeta fills the user agent and client IP unless the form sent them.
func withRequestMeta(m map[string]string, r *http.Request) map[string]string {
	if m == nil {
		m = make(map[string]string)
	}
	meta := requestMeta(r)
	if m[domain.MetaUserAgent] == "" && meta.UserAgent != "" {
		m[domain.MetaUserAgent] = meta.UserAgent
	}
	if m[domain.MetaIPAddress] == "" && meta.IPAddress != "" {
		m[domain.MetaIPAddress] = meta.IPAddress
	}
	return m
}

// Unsubscribe handles the link in every newsletter email.
//
//	GET /api/newsletter/unsubscribe?token=...|email=...&reason=...
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("token"))
	if id == "" {
		id = strings.TrimSpace(q.Get("email"))
	}
	if id == "" {
		httputil.BadRequest(w, "Unsubscribe token or email is required")
		return
	}
	sub, err := h.newsletter.Unsubscribe(r.Context(), id, q.Get("reason"))
	if err != nil {
		respondError(w, err, messages{notFound: "Subscription not found", failed: "Failed to process unsubscribe request"})
		return
	}
	httputil.OK(w, "Successfully unsubscribed from newsletter", map[string]interface{}{
		"email":          sub.Email,
		"unsubscribedAt": sub.UnsubscribedAt,
	})
}

// Resubscribe reactivates a lapsed subscription.
//
//	POST /api/newsletter/resubscribe
func (h *Handlers) Resubscribe(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !httputil.Decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Email) == "" {
		httputil.ValidationFailed(w, "Validation failed", map[string][]string{"email": {"Email is required"}})
		return
	}
	sub, err := h.newsletter.Resubscribe(r.Context(), in.Email)
	if err != nil {
		respondError(w, err, messages{
			notFound: "No previous subscription found for this email",
			failed:   "Failed to process resubscribe request",
		})
		return
	}
	httputil.OK(w, "Successfully resubscribed to newsletter!", map[string]interface{}{
		"subscriptionId": sub.SubscriptionID,
		"timestamp":      sub.Metadata.Timestamp,
	})
}

// NewsletterStats returns subscription counters and the latest subscribers.
//
//	GET /api/newsletter/stats
func (h *Handlers) NewsletterStats(w http.ResponseWriter, r *http.Request) {
	failed := messages{failed: "Failed to fetch newsletter statistics"}
	st, err := h.newsletter.Stats(r.Context())
	if err != nil {
		respondError(w, err, failed)
		return
	}
	recent, err := h.newsletter.Recent(r.Context(), recentSubscriptions)
	if err != nil {
		respondError(w, err, failed)
		return
	}
	httputil.OK(w, "", map[string]interface{}{
		"statistics":          st,
		"sourceBreakdown":     st.BySourcePage,
		"recentSubscriptions": recent,
	})
}
