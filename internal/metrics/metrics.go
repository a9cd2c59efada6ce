// Package metrics holds the Prometheus collectors for the site backend.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "site_submissions_total",
		Help: "Public form submissions by kind and outcome",
	}, []string{"kind", "outcome"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "site_notifications_total",
		Help: "Transactional emails by template and outcome",
	}, []string{"template", "outcome"})

	campaignRecipients = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "site_campaign_recipients_total",
		Help: "Bulk campaign deliveries by outcome",
	}, []string{"outcome"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "site_rate_limited_total",
		Help: "Requests rejected by the rate limiter, per bucket",
	}, []string{"bucket"})

	inFlightNotifications = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "site_notifications_in_flight",
		Help: "Notification tasks currently running",
	})
)

// Outcome label values.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Submission counts a public submission.
func Submission(kind, outcome string) { submissions.WithLabelValues(kind, outcome).Inc() }

// Notification counts a transactional email attempt.
func Notification(template, outcome string) {
	notifications.WithLabelValues(template, outcome).Inc()
}

// CampaignRecipient counts one bulk-campaign delivery attempt.
func CampaignRecipient(outcome string) { campaignRecipients.WithLabelValues(outcome).Inc() }

// RateLimited counts a rejected request.
func RateLimited(bucket string) { rateLimited.WithLabelValues(bucket).Inc() }

// NotificationStarted and NotificationFinished track in-flight tasks.
func NotificationStarted()  { inFlightNotifications.Inc() }
func NotificationFinished() { inFlightNotifications.Dec() }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
