package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/techgrid/site-backend/internal/auth"
	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/pkg/httputil"
	"github.com/techgrid/site-backend/internal/ratelimit"
	"github.com/techgrid/site-backend/internal/service/campaign"
	"github.com/techgrid/site-backend/internal/service/contact"
	"github.com/techgrid/site-backend/internal/service/dashboard"
	"github.com/techgrid/site-backend/internal/service/newsletter"
	"github.com/techgrid/site-backend/internal/service/registration"
	"github.com/techgrid/site-backend/internal/service/templates"
)

// Number of recent records returned by the public stats endpoints.
const (
	recentContacts      = 5
	recentRegistrations = 10
	recentSubscriptions = 10
)

// Handlers holds the services behind the HTTP surface.
type Handlers struct {
	contacts      *contact.Service
	registrations *registration.Service
	newsletter    *newsletter.Service
	templates     *templates.Service
	campaigns     *campaign.Service
	dashboard     *dashboard.Service
	now           func() time.Time
}

// Services bundles the constructed services.
type Services struct {
	Contacts      *contact.Service
	Registrations *registration.Service
	Newsletter    *newsletter.Service
	Templates     *templates.Service
	Campaigns     *campaign.Service
	Dashboard     *dashboard.Service
}

// NewHandlers creates the handler set.
func NewHandlers(s Services) *Handlers {
	return &Handlers{
		contacts:      s.Contacts,
		registrations: s.Registrations,
		newsletter:    s.Newsletter,
		templates:     s.Templates,
		campaigns:     s.Campaigns,
		dashboard:     s.Dashboard,
		now:           time.Now,
	}
}

// requestMeta records where a public submission came from.
func requestMeta(r *http.Request) domain.RequestMetadata {
	return domain.RequestMetadata{UserAgent: r.UserAgent(), IPAddress: ratelimit.ClientIP(r)}
}

// actor returns the dashboard user RequireAuth attached to the request.
func actor(r *http.Request) domain.Actor {
	a, _ := auth.ActorFrom(r.Context())
	return a
}

func idParam(r *http.Request) string { return chi.URLParam(r, "id") }

// serviceHealth answers the per-service liveness endpoints.
func (h *Handlers) serviceHealth(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, name+" service is running", map[string]interface{}{
			"timestamp": h.now().UTC(),
		})
	}
}
