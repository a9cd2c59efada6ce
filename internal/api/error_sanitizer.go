package api

import (
	"errors"
	"net/http"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/pkg/httputil"
	"github.com/techgrid/site-backend/internal/pkg/logger"
	"github.com/techgrid/site-backend/internal/service/campaign"
	"github.com/techgrid/site-backend/internal/service/contact"
	"github.com/techgrid/site-backend/internal/service/newsletter"
	"github.com/techgrid/site-backend/internal/service/registration"
)

// messages are the public texts for one endpoint's failure modes.
type messages struct {
	notFound string
	failed   string
}

// respondError maps a service error onto a response. Internal errors are
// logged in full and answered with msgs.failed only, so database details
// and file paths never reach the client.
func respondError(w http.ResponseWriter, err error, msgs messages) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.ValidationFailed(w, "Validation failed", verr.Fields)

	case errors.Is(err, domain.ErrNotFound):
		httputil.NotFound(w, msgs.notFound)

	case errors.Is(err, registration.ErrAlreadyRegistered):
		msg := "Email address is already registered for this event"
		httputil.ValidationFailed(w, msg, map[string][]string{"email": {msg}})

	case errors.Is(err, newsletter.ErrAlreadySubscribed):
		msg := "Email address is already subscribed to our newsletter"
		httputil.ValidationFailed(w, msg, map[string][]string{"email": {msg}})

	case errors.Is(err, newsletter.ErrAlreadyUnsubscribed):
		httputil.BadRequest(w, "Email is already unsubscribed")

	case errors.Is(err, newsletter.ErrAlreadyBounced),
		errors.Is(err, contact.ErrInvalidTransition),
		errors.Is(err, campaign.ErrNoContent):
		httputil.BadRequest(w, err.Error())

	case errors.Is(err, campaign.ErrCampaignInProgress):
		httputil.Error(w, http.StatusConflict, "Another campaign is already sending. Please wait for it to finish.")

	default:
		logger.Error("api: request failed", "message", msgs.failed, "error", err)
		httputil.Error(w, http.StatusInternalServerError, msgs.failed)
	}
}
