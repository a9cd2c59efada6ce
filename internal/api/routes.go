package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/techgrid/site-backend/internal/auth"
	"github.com/techgrid/site-backend/internal/config"
	"github.com/techgrid/site-backend/internal/metrics"
	"github.com/techgrid/site-backend/internal/pkg/httputil"
	"github.com/techgrid/site-backend/internal/ratelimit"
)

// RouteDeps carries the cross-cutting pieces the router needs besides the
// handlers. A nil Limiter disables rate limiting.
type RouteDeps struct {
	Auth           *auth.Manager
	Health         *HealthChecker
	Limiter        *ratelimit.Limiter
	Limits         config.RateLimitConfig
	AllowedOrigins []string
}

func limitRule(bucket string, l config.LimitConfig, msg string) ratelimit.Rule {
	return ratelimit.Rule{Bucket: bucket, Limit: l.Limit, Window: l.Window(), Message: msg}
}

// SetupRoutes configures all routes.
func SetupRoutes(h *Handlers, d RouteDeps) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// CORS - allow credentials for the dashboard session cookie
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limiter := d.Limiter
	if d.Limits.Disabled {
		limiter = nil
	}
	contactLimit := limiter.Middleware(limitRule("contact", d.Limits.Contact,
		"Too many contact form submissions from this IP, please try again later."))
	registrationLimit := limiter.Middleware(limitRule("registration", d.Limits.Registration,
		"Too many registration attempts from this IP, please try again later."))
	newsletterLimit := limiter.Middleware(limitRule("newsletter", d.Limits.Newsletter,
		"Too many subscription attempts from this IP, please try again later."))
	generalLimit := limiter.Middleware(limitRule("general", d.Limits.General, ""))

	if d.Health != nil {
		r.Get("/health", d.Health.HandleHealth)
		r.Get("/health/ready", d.Health.HandleReadiness)
	}
	r.Handle("/metrics", metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", d.Auth.HandleLogin)
		r.Post("/logout", d.Auth.HandleLogout)
		r.Get("/session", d.Auth.HandleSession)
	})

	// Public site API
	r.Route("/api", func(r chi.Router) {
		r.Use(generalLimit)

		r.Route("/contact", func(r chi.Router) {
			r.With(contactLimit).Post("/", h.SubmitContact)
			r.Get("/health", h.serviceHealth("Contact"))
			r.Get("/stats", h.ContactStats)
		})

		r.Route("/register", func(r chi.Router) {
			r.With(registrationLimit).Post("/", h.SubmitRegistration)
			r.Get("/verify/{id}", h.VerifyRegistration)
			r.Get("/health", h.serviceHealth("Registration"))
			r.Get("/stats", h.RegistrationStats)
		})

		r.Route("/newsletter", func(r chi.Router) {
			r.With(newsletterLimit).Post("/", h.Subscribe)
			r.Get("/unsubscribe", h.Unsubscribe)
			r.With(newsletterLimit).Post("/resubscribe", h.Resubscribe)
			r.Get("/health", h.serviceHealth("Newsletter"))
			r.Get("/stats", h.NewsletterStats)
		})
	})

	// Admin dashboard API (session required)
	r.Route("/dashboard/api", func(r chi.Router) {
		r.Use(d.Auth.RequireAuth)

		r.Get("/overview", h.Overview)

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", h.ListContacts)
			r.Post("/", h.CreateContact)
			r.Get("/{id}", h.GetContact)
			r.Put("/{id}", h.UpdateContact)
			r.Delete("/{id}", h.DeleteContact)
			r.Patch("/{id}/status", h.UpdateContactStatus)
			r.Post("/{id}/reply", h.ReplyToContact)
		})

		r.Route("/registrations", func(r chi.Router) {
			r.Get("/", h.ListRegistrations)
			r.Post("/", h.CreateRegistration)
			r.Get("/{id}", h.GetRegistration)
			r.Put("/{id}", h.UpdateRegistration)
			r.Delete("/{id}", h.DeleteRegistration)
			r.Patch("/{id}/status", h.UpdateRegistrationStatus)
			r.Post("/{id}/newsletter", h.AddRegistrationToNewsletter)
		})

		r.Route("/newsletter", func(r chi.Router) {
			r.Get("/", h.ListSubscriptions)
			r.Post("/", h.CreateSubscription)
			r.Get("/{id}", h.GetSubscription)
			r.Put("/{id}", h.UpdateSubscription)
			r.Delete("/{id}", h.DeleteSubscription)
			r.Patch("/{id}/status", h.UpdateSubscriptionStatus)
		})

		r.Route("/email-templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/", h.CreateTemplate)
			r.Get("/{id}", h.GetTemplate)
			r.Delete("/{id}", h.DeleteTemplate)
		})

		r.Post("/campaigns", h.SendCampaign)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "Route not found")
	})

	return r
}
