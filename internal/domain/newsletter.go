package domain

import "time"

// SubscriptionStatus is the newsletter lifecycle state.
type SubscriptionStatus string

const (
	SubscriptionSubscribed   SubscriptionStatus = "subscribed"
	SubscriptionUnsubscribed SubscriptionStatus = "unsubscribed"
	SubscriptionBounced      SubscriptionStatus = "bounced"
)

// Valid reports whether s is a known state.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionSubscribed, SubscriptionUnsubscribed, SubscriptionBounced:
		return true
	}
	return false
}

// Active reports the isActive value that goes with s.
func (s SubscriptionStatus) Active() bool { return s == SubscriptionSubscribed }

// Frequency is how often a subscriber wants mail.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Topic is a newsletter content topic.
type Topic string

const (
	TopicAIFinance         Topic = "ai-finance"
	TopicTradingTechnology Topic = "trading-technology"
	TopicFintechNews       Topic = "fintech-news"
	TopicEventUpdates      Topic = "event-updates"
	TopicIndustryInsights  Topic = "industry-insights"
)

// Unsubscribe reasons recorded when the caller gives none.
const (
	DefaultUnsubscribeReason = "User requested"
	AdminDeactivationReason  = "Deactivated by admin"
)

// DefaultTopics are assigned at creation when the subscriber picks none.
func DefaultTopics() []Topic { return []Topic{TopicEventUpdates, TopicIndustryInsights} }

// Preferences holds subscriber mail preferences.
type Preferences struct {
	Frequency Frequency `json:"frequency" validate:"omitempty,oneof=daily weekly monthly"`
	Topics    []Topic   `json:"topics" validate:"omitempty,dive,oneof=ai-finance trading-technology fintech-news event-updates industry-insights"`
}

// SubscriptionMetadata extends the request metadata with the page the
// subscriber signed up on and the lifecycle status.
type SubscriptionMetadata struct {
	RequestMetadata
	SourcePage string             `json:"sourcePage,omitempty"`
	Status     SubscriptionStatus `json:"status"`
}

// Metadata keys a subscriber-supplied metadata map may set. Anything else is
// dropped, both at creation and on reactivation.
const (
	MetaUserAgent  = "userAgent"
	MetaIPAddress  = "ipAddress"
	MetaSource     = "source"
	MetaSourcePage = "sourcePage"
)

// Merge copies the known keys of fields into m and returns the keys that
// were dropped.
func (m *SubscriptionMetadata) Merge(fields map[string]string) (dropped []string) {
	for k, v := range fields {
		switch k {
		case MetaUserAgent:
			m.UserAgent = v
		case MetaIPAddress:
			m.IPAddress = v
		case MetaSource:
			m.Source = v
		case MetaSourcePage:
			m.SourcePage = v
		default:
			dropped = append(dropped, k)
		}
	}
	return dropped
}

// Subscription is a newsletter subscription keyed by email.
type Subscription struct {
	ID                 string               `json:"id"`
	SubscriptionID     string               `json:"subscriptionId"`
	Email              string               `json:"email"`
	IsActive           bool                 `json:"isActive"`
	Metadata           SubscriptionMetadata `json:"metadata"`
	Preferences        Preferences          `json:"preferences"`
	Tags               []string             `json:"tags"`
	WelcomeEmailSent   bool                 `json:"welcomeEmailSent"`
	WelcomeEmailSentAt *time.Time           `json:"welcomeEmailSentAt,omitempty"`
	AdminNotified      bool                 `json:"adminNotified"`
	AdminNotifiedAt    *time.Time           `json:"adminNotifiedAt,omitempty"`
	UnsubscribedAt     *time.Time           `json:"unsubscribedAt,omitempty"`
	UnsubscribeReason  string               `json:"unsubscribeReason,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

// SetStatus moves the subscription to st, keeping IsActive in lockstep.
func (s *Subscription) SetStatus(st SubscriptionStatus) {
	s.Metadata.Status = st
	s.IsActive = st.Active()
}

// Consistent reports whether IsActive agrees with the lifecycle status.
func (s *Subscription) Consistent() bool { return s.IsActive == s.Metadata.Status.Active() }

// SubscribeInput is the user-supplied part of a newsletter signup.
type SubscribeInput struct {
	Email       string            `json:"email" validate:"required,email,max=320"`
	Metadata    map[string]string `json:"metadata"`
	Preferences *Preferences      `json:"preferences"`
	Tags        []string          `json:"tags"`
}

// NewSubscription builds an active subscription. Unknown metadata keys are
// dropped and returned.
func NewSubscription(in SubscribeInput, now time.Time) (*Subscription, []string) {
	s := &Subscription{
		ID:             NewInternalID(),
		SubscriptionID: NewToken(),
		Email:          NormalizeEmail(in.Email),
		Preferences:    Preferences{Frequency: FrequencyWeekly, Topics: DefaultTopics()},
		Tags:           in.Tags,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	dropped := s.Metadata.Merge(in.Metadata)
	s.Metadata.RequestMetadata = s.Metadata.RequestMetadata.WithDefaults(SourceNewsletter, now)
	s.Metadata.Timestamp = now
	if in.Preferences != nil {
		if in.Preferences.Frequency != "" {
			s.Preferences.Frequency = in.Preferences.Frequency
		}
		if len(in.Preferences.Topics) > 0 {
			s.Preferences.Topics = in.Preferences.Topics
		}
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}
	s.SetStatus(SubscriptionSubscribed)
	return s, dropped
}

// NewsletterStats aggregates subscriptions for the dashboard.
type NewsletterStats struct {
	Total         int            `json:"total"`
	Active        int            `json:"active"`
	Subscribed    int            `json:"subscribed"`
	Unsubscribed  int            `json:"unsubscribed"`
	Bounced       int            `json:"bounced"`
	WelcomesSent  int            `json:"welcomesSent"`
	AdminNotified int            `json:"adminNotified"`
	BySourcePage  map[string]int `json:"bySourcePage"`
}
