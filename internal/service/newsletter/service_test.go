package newsletter_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/notify"
	"github.com/techgrid/site-backend/internal/query"
	"github.com/techgrid/site-backend/internal/repository/memory"
	"github.com/techgrid/site-backend/internal/service/newsletter"
)

type recordingNotifier struct {
	mu    sync.Mutex
	tasks []notify.Task
}

func (n *recordingNotifier) Dispatch(tasks ...notify.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, tasks...)
}

func (n *recordingNotifier) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.tasks))
	for _, t := range n.tasks {
		out = append(out, t.Template)
	}
	return out
}

var admin = domain.Actor{Email: "admin@techgrid.example"}

func newService() (*newsletter.Service, *recordingNotifier) {
	n := &recordingNotifier{}
	return newsletter.NewService(memory.NewNewsletterRepo(), n, newsletter.WithBaseURL("https://techgrid.example/")), n
}

func requireConsistent(t *testing.T, s *domain.Subscription) {
	t.Helper()
	require.Equal(t, s.Metadata.Status == domain.SubscriptionSubscribed, s.IsActive,
		"isActive must mirror status %q", s.Metadata.Status)
}

func TestSubscribe_NewSubscription(t *testing.T) {
	svc, n := newService()
	sub, err := svc.Subscribe(context.Background(), domain.SubscribeInput{
		Email: "  Reader@Example.COM ",
		Metadata: map[string]string{
			domain.MetaSourcePage: "/agenda",
			domain.MetaIPAddress:  "203.0.113.9",
			"status":              "bounced",
			"utm_campaign":        "spring",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "reader@example.com", sub.Email)
	assert.Equal(t, domain.SubscriptionSubscribed, sub.Metadata.Status, "status is not caller-settable")
	assert.True(t, sub.IsActive)
	assert.Equal(t, "/agenda", sub.Metadata.SourcePage)
	assert.Equal(t, domain.SourceNewsletter, sub.Metadata.Source)
	assert.Equal(t, domain.FrequencyWeekly, sub.Preferences.Frequency)
	assert.Equal(t, domain.DefaultTopics(), sub.Preferences.Topics)

	assert.Equal(t, []string{"newsletter_welcome", "newsletter_admin_notification"}, n.templates())
	assert.Equal(t, "https://techgrid.example/api/newsletter/unsubscribe?token="+sub.SubscriptionID,
		n.tasks[0].Vars["unsubscribeUrl"])
}

func TestSubscribe_DuplicateIgnoresCase(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	_, err := svc.Subscribe(ctx, domain.SubscribeInput{Email: "dup@example.com"})
	require.NoError(t, err)

	_, err = svc.Subscribe(ctx, domain.SubscribeInput{Email: "DUP@Example.com"})
	assert.ErrorIs(t, err, newsletter.ErrAlreadySubscribed)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
}

func TestSubscribe_InvalidEmail(t *testing.T) {
	svc, n := newService()
	_, err := svc.Subscribe(context.Background(), domain.SubscribeInput{Email: "not-an-email"})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"Please provide a valid email address"}, verr.Fields["email"])
	assert.Empty(t, n.tasks)
}

func TestUnsubscribeResubscribe_RoundTrip(t *testing.T) {
	svc, n := newService()
	ctx := context.Background()
	sub, err := svc.Subscribe(ctx, domain.SubscribeInput{Email: "round@example.com"})
	require.NoError(t, err)

	out, err := svc.Unsubscribe(ctx, sub.SubscriptionID, "")
	require.NoError(t, err)
	requireConsistent(t, out)
	assert.Equal(t, domain.SubscriptionUnsubscribed, out.Metadata.Status)
	assert.Equal(t, domain.DefaultUnsubscribeReason, out.UnsubscribeReason)
	require.NotNil(t, out.UnsubscribedAt)

	_, err = svc.Unsubscribe(ctx, "ROUND@example.com", "again")
	assert.ErrorIs(t, err, newsletter.ErrAlreadyUnsubscribed)

	back, err := svc.Resubscribe(ctx, "round@example.com")
	require.NoError(t, err)
	requireConsistent(t, back)
	assert.Equal(t, domain.SubscriptionSubscribed, back.Metadata.Status)
	assert.Nil(t, back.UnsubscribedAt)
	assert.Empty(t, back.UnsubscribeReason)
	assert.Equal(t, sub.SubscriptionID, back.SubscriptionID)
	assert.Equal(t, "newsletter_welcome", n.templates()[len(n.tasks)-1])

	_, err = svc.Resubscribe(ctx, sub.ID)
	assert.ErrorIs(t, err, newsletter.ErrAlreadySubscribed)

	_, err = svc.Unsubscribe(ctx, "nobody@example.com", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUnsubscribe_ReasonTooLong(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	sub, err := svc.Subscribe(ctx, domain.SubscribeInput{Email: "long@example.com"})
	require.NoError(t, err)

	_, err = svc.Unsubscribe(ctx, sub.SubscriptionID, strings.Repeat("x", 501))
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "reason")
}

func TestUnsubscribe_ReasonLimitCountsCharacters(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	sub, err := svc.Subscribe(ctx, domain.SubscribeInput{Email: "accents@example.com"})
	require.NoError(t, err)

	reason := strings.Repeat("é", 300)
	got, err := svc.Unsubscribe(ctx, sub.SubscriptionID, reason)
	require.NoError(t, err)
	assert.Equal(t, reason, got.UnsubscribeReason)
}

func TestSubscribe_ReactivatesAndMergesKnownMetadata(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	sub, err := svc.Subscribe(ctx, domain.SubscribeInput{
		Email:    "lapsed@example.com",
		Metadata: map[string]string{domain.MetaSourcePage: "/home", domain.MetaUserAgent: "old"},
	})
	require.NoError(t, err)
	_, err = svc.Unsubscribe(ctx, sub.SubscriptionID, "too many emails")
	require.NoError(t, err)

	again, err := svc.Subscribe(ctx, domain.SubscribeInput{
		Email:    "Lapsed@example.com",
		Metadata: map[string]string{domain.MetaSourcePage: "/pricing", "subscriptionId": "hijack"},
	})
	require.NoError(t, err)
	requireConsistent(t, again)
	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, sub.SubscriptionID, again.SubscriptionID)
	assert.Equal(t, "/pricing", again.Metadata.SourcePage)
	assert.Equal(t, "old", again.Metadata.UserAgent)
	assert.Nil(t, again.UnsubscribedAt)
	assert.Empty(t, again.UnsubscribeReason)
}

func TestSubscribe_ConcurrentSameEmail(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok, dup int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := "race@example.com"
			if i%2 == 0 {
				email = "RACE@example.com"
			}
			_, err := svc.Subscribe(ctx, domain.SubscribeInput{Email: email})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, newsletter.ErrAlreadySubscribed):
				dup++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, dup)
	page, err := svc.List(ctx, query.List{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestResubscribe_ConcurrentOnlyOneWins(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	sub, err := svc.Subscribe(ctx, domain.SubscribeInput{Email: "twice@example.com"})
	require.NoError(t, err)
	_, err = svc.Unsubscribe(ctx, sub.SubscriptionID, "")
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 8)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Resubscribe(ctx, sub.SubscriptionID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, newsletter.ErrAlreadySubscribed)
	}
	assert.Equal(t, 1, wins)
}

func TestAdmin_StatusChangesKeepLockstep(t *testing.T) {
	svc, n := newService()
	ctx := context.Background()
	sub, err := svc.Create(ctx, admin, domain.SubscribeInput{Email: "admin-made@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.SourceAdminDashboard, sub.Metadata.Source)
	assert.Empty(t, n.tasks)

	steps := []domain.SubscriptionStatus{
		domain.SubscriptionBounced,
		domain.SubscriptionSubscribed,
		domain.SubscriptionUnsubscribed,
		domain.SubscriptionBounced,
		domain.SubscriptionSubscribed,
	}
	for _, st := range steps {
		got, err := svc.SetStatus(ctx, admin, sub.ID, st)
		require.NoError(t, err, "to %s", st)
		assert.Equal(t, st, got.Metadata.Status)
		requireConsistent(t, got)
	}
	assert.Empty(t, n.tasks, "admin status changes send no mail")

	_, err = svc.MarkBounced(ctx, admin, sub.ID)
	require.NoError(t, err)
	_, err = svc.MarkBounced(ctx, admin, sub.ID)
	assert.ErrorIs(t, err, newsletter.ErrAlreadyBounced)

	_, err = svc.SetStatus(ctx, admin, sub.ID, "paused")
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestAdmin_UpdateMapsIsActive(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	sub, err := svc.Create(ctx, admin, domain.SubscribeInput{Email: "edit@example.com"})
	require.NoError(t, err)

	off := false
	got, err := svc.Update(ctx, admin, sub.SubscriptionID, newsletter.Update{IsActive: &off})
	require.NoError(t, err)
	requireConsistent(t, got)
	assert.Equal(t, domain.SubscriptionUnsubscribed, got.Metadata.Status)
	assert.Equal(t, domain.AdminDeactivationReason, got.UnsubscribeReason)

	on := true
	email := "Edited@Example.com"
	got, err = svc.Update(ctx, admin, sub.ID, newsletter.Update{
		IsActive:    &on,
		Email:       &email,
		Preferences: &domain.Preferences{Frequency: domain.FrequencyMonthly, Topics: []domain.Topic{domain.TopicAIFinance}},
	})
	require.NoError(t, err)
	requireConsistent(t, got)
	assert.Equal(t, "edited@example.com", got.Email)
	assert.Equal(t, domain.FrequencyMonthly, got.Preferences.Frequency)
	assert.Nil(t, got.UnsubscribedAt)

	_, err = svc.Update(ctx, admin, sub.ID, newsletter.Update{
		Preferences: &domain.Preferences{Frequency: "hourly"},
	})
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))

	other, err := svc.Create(ctx, admin, domain.SubscribeInput{Email: "other@example.com"})
	require.NoError(t, err)
	_, err = svc.Update(ctx, admin, other.ID, newsletter.Update{Email: &email})
	assert.ErrorIs(t, err, newsletter.ErrAlreadySubscribed)
}

func TestAdmin_UpdateKeepsFrequencyWhenOmitted(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	sub, err := svc.Subscribe(ctx, domain.SubscribeInput{
		Email:       "prefs@example.com",
		Preferences: &domain.Preferences{Frequency: domain.FrequencyDaily},
	})
	require.NoError(t, err)

	got, err := svc.Update(ctx, admin, sub.SubscriptionID, newsletter.Update{
		Preferences: &domain.Preferences{Topics: []domain.Topic{domain.TopicAIFinance}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FrequencyDaily, got.Preferences.Frequency)
	assert.Equal(t, []domain.Topic{domain.TopicAIFinance}, got.Preferences.Topics)

	stored, err := svc.Get(ctx, sub.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, domain.FrequencyDaily, stored.Preferences.Frequency)
}

func TestList_FiltersAndStats(t *testing.T) {
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	n := &recordingNotifier{}
	svc := newsletter.NewService(memory.NewNewsletterRepo(), n, newsletter.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	ctx := context.Background()

	emails := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}
	for _, e := range emails {
		_, err := svc.Subscribe(ctx, domain.SubscribeInput{Email: e, Metadata: map[string]string{domain.MetaSourcePage: "/blog"}})
		require.NoError(t, err)
	}
	_, err := svc.Unsubscribe(ctx, "b@example.com", "")
	require.NoError(t, err)
	_, err = svc.MarkBounced(ctx, admin, "c@example.com")
	require.NoError(t, err)

	active := true
	page, err := svc.List(ctx, query.List{Active: &active})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, "d@example.com", page.Items[0].Email, "newest first")

	page, err = svc.List(ctx, query.List{Status: "bounced"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, "c@example.com", page.Items[0].Email)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 2, st.Active)
	assert.Equal(t, st.Total, st.Subscribed+st.Unsubscribed+st.Bounced)
	assert.Equal(t, 4, st.BySourcePage["/blog"])

	subscribed, err := svc.IsSubscribed(ctx, "A@example.com")
	require.NoError(t, err)
	assert.True(t, subscribed)
	recipients, err := svc.Recipients(ctx)
	require.NoError(t, err)
	require.Len(t, recipients, 2)
	assert.Equal(t, "a@example.com", recipients[0].Email, "oldest first")
}

func TestDelete(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	sub, err := svc.Subscribe(ctx, domain.SubscribeInput{Email: "bye@example.com"})
	require.NoError(t, err)

	_, err = svc.Delete(ctx, admin, "bye@example.com")
	require.NoError(t, err)
	_, err = svc.Get(ctx, sub.SubscriptionID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Subscribe(ctx, domain.SubscribeInput{Email: "bye@example.com"})
	assert.NoError(t, err, "a deleted address can subscribe again")
}
