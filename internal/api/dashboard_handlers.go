package api

import (
	"net/http"
	"strings"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/pkg/httputil"
	"github.com/techgrid/site-backend/internal/service/campaign"
	"github.com/techgrid/site-backend/internal/service/contact"
	"github.com/techgrid/site-backend/internal/service/newsletter"
	"github.com/techgrid/site-backend/internal/service/registration"
)

type statusBody struct {
	Status string `json:"status"`
}

// Overview returns the dashboard landing data.
func (h *Handlers) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.dashboard.Overview(r.Context())
	if err != nil {
		respondError(w, err, messages{failed: "Failed to fetch dashboard overview"})
		return
	}
	httputil.OK(w, "", ov)
}

// ---------------------------------------------------------------------------
// Contacts
// ---------------------------------------------------------------------------

var contactMsgs = messages{notFound: "Contact not found", failed: "Failed to update contact"}

func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	page, err := h.contacts.List(r.Context(), parseList(r))
	if err != nil {
		respondError(w, err, messages{failed: "Failed to fetch contacts"})
		return
	}
	respondPage(w, page)
}

func (h *Handlers) GetContact(w http.ResponseWriter, r *http.Request) {
	c, err := h.contacts.Get(r.Context(), idParam(r))
	if err != nil {
		respondError(w, err, messages{notFound: "Contact not found", failed: "Failed to fetch contact"})
		return
	}
	httputil.OK(w, "", c)
}

func (h *Handlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	var in domain.ContactInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.contacts.Create(r.Context(), actor(r), in)
	if err != nil {
		respondError(w, err, messages{failed: "Failed to create contact"})
		return
	}
	httputil.Created(w, "Contact created successfully", c)
}

func (h *Handlers) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var u contact.Update
	if !httputil.Decode(w, r, &u) {
		return
	}
	c, err := h.contacts.Update(r.Context(), actor(r), idParam(r), u)
	if err != nil {
		respondError(w, err, contactMsgs)
		return
	}
	httputil.OK(w, "Contact updated successfully", c)
}

func (h *Handlers) UpdateContactStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody
	if !httputil.Decode(w, r, &body) {
		return
	}
	c, err := h.contacts.UpdateStatus(r.Context(), actor(r), idParam(r), domain.ContactStatus(body.Status))
	if err != nil {
		respondError(w, err, contactMsgs)
		return
	}
	httputil.OK(w, "Contact status updated successfully", c)
}

// ReplyToContact mails an admin reply and marks the contact responded.
func (h *Handlers) ReplyToContact(w http.ResponseWriter, r *http.Request) {
	var in contact.ReplyInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.contacts.Reply(r.Context(), actor(r), idParam(r), in)
	if err != nil {
		respondError(w, err, messages{notFound: "Contact not found", failed: "Failed to send reply"})
		return
	}
	httputil.OK(w, "Reply sent successfully", c)
}

func (h *Handlers) DeleteContact(w http.ResponseWriter, r *http.Request) {
	c, err := h.contacts.Delete(r.Context(), actor(r), idParam(r))
	if err != nil {
		respondError(w, err, messages{notFound: "Contact not found", failed: "Failed to delete contact"})
		return
	}
	httputil.OK(w, "Contact deleted successfully", map[string]string{"id": c.ID, "contactId": c.ContactID})
}

// ---------------------------------------------------------------------------
// Registrations
// ---------------------------------------------------------------------------

var registrationMsgs = messages{notFound: "Registration not found", failed: "Failed to update registration"}

func (h *Handlers) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	page, err := h.registrations.List(r.Context(), parseList(r))
	if err != nil {
		respondError(w, err, messages{failed: "Failed to fetch registrations"})
		return
	}
	respondPage(w, page)
}

func (h *Handlers) GetRegistration(w http.ResponseWriter, r *http.Request) {
	v, err := h.registrations.Get(r.Context(), idParam(r))
	if err != nil {
		respondError(w, err, messages{notFound: "Registration not found", failed: "Failed to fetch registration"})
		return
	}
	httputil.OK(w, "", v)
}

func (h *Handlers) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	var in domain.RegistrationInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	reg, err := h.registrations.Create(r.Context(), actor(r), in)
	if err != nil {
		respondError(w, err, messages{failed: "Failed to create registration"})
		return
	}
	httputil.Created(w, "Registration created successfully", reg)
}

func (h *Handlers) UpdateRegistration(w http.ResponseWriter, r *http.Request) {
	var u registration.Update
	if !httputil.Decode(w, r, &u) {
		return
	}
	reg, err := h.registrations.Update(r.Context(), actor(r), idParam(r), u)
	if err != nil {
		respondError(w, err, registrationMsgs)
		return
	}
	httputil.OK(w, "Registration updated successfully", reg)
}

func (h *Handlers) UpdateRegistrationStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody
	if !httputil.Decode(w, r, &body) {
		return
	}
	reg, err := h.registrations.UpdateStatus(r.Context(), actor(r), idParam(r), domain.RegistrationStatus(body.Status))
	if err != nil {
		respondError(w, err, registrationMsgs)
		return
	}
	httputil.OK(w, "Registration status updated successfully", reg)
}

// AddRegistrationToNewsletter subscribes the registrant's email.
func (h *Handlers) AddRegistrationToNewsletter(w http.ResponseWriter, r *http.Request) {
	v, err := h.registrations.AddToNewsletter(r.Context(), actor(r), idParam(r))
	if err != nil {
		respondError(w, err, messages{notFound: "Registration not found", failed: "Failed to add registration to newsletter"})
		return
	}
	httputil.OK(w, "Registration added to newsletter successfully", v)
}

func (h *Handlers) DeleteRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registrations.Delete(r.Context(), actor(r), idParam(r))
	if err != nil {
		respondError(w, err, messages{notFound: "Registration not found", failed: "Failed to delete registration"})
		return
	}
	httputil.OK(w, "Registration deleted successfully", map[string]string{
		"id":                 reg.ID,
		"registrationId":     reg.RegistrationID,
		"registrationNumber": reg.RegistrationNumber,
	})
}

// ---------------------------------------------------------------------------
// Newsletter
// ---------------------------------------------------------------------------

var subscriptionMsgs = messages{notFound: "Newsletter subscription not found", failed: "Failed to update newsletter subscription"}

func (h *Handlers) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	page, err := h.newsletter.List(r.Context(), parseList(r))
	if err != nil {
		respondError(w, err, messages{failed: "Failed to fetch newsletter subscriptions"})
		return
	}
	respondPage(w, page)
}

func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.newsletter.Get(r.Context(), idParam(r))
	if err != nil {
		respondError(w, err, messages{notFound: "Newsletter subscription not found", failed: "Failed to fetch newsletter subscription"})
		return
	}
	httputil.OK(w, "", sub)
}

func (h *Handlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var in domain.SubscribeInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	sub, err := h.newsletter.Create(r.Context(), actor(r), in)
	if err != nil {
		respondError(w, err, messages{failed: "Failed to create newsletter subscription"})
		return
	}
	httputil.Created(w, "Newsletter subscription created successfully", sub)
}

func (h *Handlers) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var u newsletter.Update
	if !httputil.Decode(w, r, &u) {
		return
	}
	sub, err := h.newsletter.Update(r.Context(), actor(r), idParam(r), u)
	if err != nil {
		respondError(w, err, subscriptionMsgs)
		return
	}
	httputil.OK(w, "Newsletter subscription updated successfully", sub)
}

// subscriptionActions maps the dashboard's action verbs onto states. The
// state names themselves are accepted too.
var subscriptionActions = map[string]domain.SubscriptionStatus{
	"subscribe":   domain.SubscriptionSubscribed,
	"unsubscribe": domain.SubscriptionUnsubscribed,
	"bounce":      domain.SubscriptionBounced,
}

func (h *Handlers) UpdateSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
		Action string `json:"action"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	v := strings.ToLower(strings.TrimSpace(body.Action))
	if v == "" {
		v = strings.ToLower(strings.TrimSpace(body.Status))
	}
	st, ok := subscriptionActions[v]
	if !ok {
		st = domain.SubscriptionStatus(v)
	}
	sub, err := h.newsletter.SetStatus(r.Context(), actor(r), idParam(r), st)
	if err != nil {
		respondError(w, err, subscriptionMsgs)
		return
	}
	httputil.OK(w, "Newsletter subscription status updated successfully", sub)
}

func (h *Handlers) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.newsletter.Delete(r.Context(), actor(r), idParam(r))
	if err != nil {
		respondError(w, err, messages{notFound: "Newsletter subscription not found", failed: "Failed to delete newsletter subscription"})
		return
	}
	httputil.OK(w, "Newsletter subscription deleted successfully", map[string]string{
		"id":             sub.ID,
		"subscriptionId": sub.SubscriptionID,
	})
}

// ---------------------------------------------------------------------------
// Templates and campaigns
// ---------------------------------------------------------------------------

func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	page, err := h.templates.List(r.Context(), parseList(r))
	if err != nil {
		respondError(w, err, messages{failed: "Failed to fetch email templates"})
		return
	}
	respondPage(w, page)
}

func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Get(r.Context(), idParam(r))
	if err != nil {
		respondError(w, err, messages{notFound: "Email template not found", failed: "Failed to fetch email template"})
		return
	}
	httputil.OK(w, "", t)
}

func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var in domain.TemplateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	t, err := h.templates.Create(r.Context(), actor(r), in)
	if err != nil {
		respondError(w, err, messages{failed: "Failed to save email template"})
		return
	}
	httputil.Created(w, "Email template saved successfully", t)
}

func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Delete(r.Context(), actor(r), idParam(r))
	if err != nil {
		respondError(w, err, messages{notFound: "Email template not found", failed: "Failed to delete email template"})
		return
	}
	httputil.OK(w, "Email template deleted successfully", map[string]string{"id": t.ID})
}

// SendCampaign mails a template or inline content to an audience and
// answers with the per-recipient tally once every message is attempted.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaign.Request
	if !httputil.Decode(w, r, &req) {
		return
	}
	sum, err := h.campaigns.Send(r.Context(), actor(r), req)
	if err != nil {
		respondError(w, err, messages{notFound: "Email template not found", failed: "Failed to send campaign"})
		return
	}
	httputil.OK(w, "Campaign sent", sum)
}
