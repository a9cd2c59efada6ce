package registration_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/notify"
	"github.com/techgrid/site-backend/internal/query"
	"github.com/techgrid/site-backend/internal/repository/memory"
	"github.com/techgrid/site-backend/internal/service/newsletter"
	"github.com/techgrid/site-backend/internal/service/registration"
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

func (n *recordingNotifier) byTemplate(name string) []notify.Task {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notify.Task
	for _, t := range n.tasks {
		if t.Template == name {
			out = append(out, t)
		}
	}
	return out
}

var (
	admin     = domain.Actor{Email: "admin@techgrid.example"}
	event     = registration.Event{ID: "tech_grid_ai_finance_2025", Name: "Tech Grid Summit", NumberPrefix: "TGS"}
	fixedTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc      *registration.Service
	news     *newsletter.Service
	notifier *recordingNotifier
}

func newFixture(opts ...registration.Option) *fixture {
	n := &recordingNotifier{}
	news := newsletter.NewService(memory.NewNewsletterRepo(), n)
	opts = append([]registration.Option{
		registration.WithClock(func() time.Time { return fixedTime }),
		registration.WithBaseURL("https://techgrid.example"),
	}, opts...)
	return &fixture{
		svc:      registration.NewService(memory.NewRegistrationRepo(), news, n, event, opts...),
		news:     news,
		notifier: n,
	}
}

func input(email string) domain.RegistrationInput {
	return domain.RegistrationInput{
		FirstName:  "Katherine",
		LastName:   "Johnson",
		Email:      email,
		Phone:      "(757) 555-0100",
		Company:    "NASA",
		JobTitle:   "Mathematician",
		Experience: "expert",
		Interests:  []string{"ai-trading", "risk-management"},
		Terms:      true,
	}
}

func TestSubmit_AssignsNumberAndNotifies(t *testing.T) {
	f := newFixture(registration.WithNumberSource(func() int { return 42 }))
	ctx := context.Background()

	r, err := f.svc.Submit(ctx, input("Katherine@NASA.gov"), domain.RequestMetadata{IPAddress: "198.51.100.1"})
	require.NoError(t, err)
	assert.Equal(t, "TGS20250042", r.RegistrationNumber)
	assert.Equal(t, "katherine@nasa.gov", r.Email)
	assert.Equal(t, domain.RegistrationRegistered, r.Metadata.Status)
	assert.Equal(t, event.ID, r.Metadata.EventID)
	assert.Equal(t, domain.SourceRegistration, r.Metadata.Source)

	confirmations := f.notifier.byTemplate("registration_confirmation")
	require.Len(t, confirmations, 1)
	vars := confirmations[0].Vars
	assert.Equal(t, "https://techgrid.example/api/register/verify/"+r.RegistrationID, vars["verifyUrl"])
	assert.Equal(t, "Tech Grid Summit", vars["event"].(map[string]interface{})["name"])
	require.Len(t, f.notifier.byTemplate("registration_admin_notification"), 1)

	require.NoError(t, confirmations[0].OnSent(ctx, fixedTime))
	got, err := f.svc.Get(ctx, r.RegistrationNumber)
	require.NoError(t, err)
	assert.True(t, got.ConfirmationEmailSent)
	assert.False(t, got.NewsletterSubscribed)
}

func TestSubmit_LowerCasePrefixStaysResolvable(t *testing.T) {
	ev := event
	ev.NumberPrefix = "tgs"
	svc := registration.NewService(memory.NewRegistrationRepo(), nil, &recordingNotifier{}, ev,
		registration.WithClock(func() time.Time { return fixedTime }),
		registration.WithNumberSource(func() int { return 2349 }))
	ctx := context.Background()

	r, err := svc.Submit(ctx, input("lower@example.com"), domain.RequestMetadata{})
	require.NoError(t, err)
	assert.Equal(t, "TGS20252349", r.RegistrationNumber)
	assert.Equal(t, "TGS", svc.Event().NumberPrefix)

	for _, id := range []string{"tgs20252349", "TGS20252349"} {
		got, err := svc.Verify(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, r.RegistrationID, got.RegistrationID)
	}
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture()
	in := input("bad")
	in.Terms = false
	in.FirstName = "K"
	in.Interests = []string{"ai-trading", "crypto"}
	in.Experience = "guru"

	_, err := f.svc.Submit(context.Background(), in, domain.RequestMetadata{})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"Terms and conditions must be accepted"}, verr.Fields["terms"])
	assert.Equal(t, []string{"First name must be at least 2 characters"}, verr.Fields["firstName"])
	assert.Equal(t, []string{"Invalid interests: crypto"}, verr.Fields["interests"])
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "experience")
	assert.Empty(t, f.notifier.tasks)
}

func TestSubmit_DuplicateEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, input("dup@example.com"), domain.RequestMetadata{})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, input("DUP@example.com"), domain.RequestMetadata{})
	assert.ErrorIs(t, err, registration.ErrAlreadyRegistered)
}

func TestSubmit_RetriesNumberCollision(t *testing.T) {
	// The second registration draws 7 twice before getting 8.
	draws := []int{7, 7, 7, 8}
	var i int32
	f := newFixture(registration.WithNumberSource(func() int {
		return draws[int(atomic.AddInt32(&i, 1)-1)%len(draws)]
	}))
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, input("first@example.com"), domain.RequestMetadata{})
	require.NoError(t, err)
	assert.Equal(t, "TGS20250007", first.RegistrationNumber)

	second, err := f.svc.Submit(ctx, input("second@example.com"), domain.RequestMetadata{})
	require.NoError(t, err)
	assert.Equal(t, "TGS20250008", second.RegistrationNumber)
	assert.Equal(t, int32(4), atomic.LoadInt32(&i))
}

func TestSubmit_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	f := newFixture(registration.WithNumberSource(func() int {
		atomic.AddInt32(&calls, 1)
		return 1
	}))
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, input("one@example.com"), domain.RequestMetadata{})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, input("two@example.com"), domain.RequestMetadata{})
	assert.ErrorIs(t, err, registration.ErrNumbersExhausted)
	assert.Equal(t, int32(1+registration.MaxNumberAttempts), atomic.LoadInt32(&calls))
}

func TestSubmit_ConcurrentSameEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	const workers = 12
	var (
		wg       sync.WaitGroup
		ok, dups int32
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(ctx, input("same@example.com"), domain.RequestMetadata{})
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, registration.ErrAlreadyRegistered):
				atomic.AddInt32(&dups, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(workers-1), dups)
}

func TestSubmit_NewsletterOptIn(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := input("reader@example.com")
	in.Newsletter = true
	r, err := f.svc.Submit(ctx, in, domain.RequestMetadata{UserAgent: "Mozilla"})
	require.NoError(t, err)

	sub, err := f.news.Get(ctx, "reader@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceRegistrationOpt, sub.Metadata.Source)
	assert.Equal(t, "registration", sub.Metadata.SourcePage)

	view, err := f.svc.Get(ctx, r.RegistrationID)
	require.NoError(t, err)
	assert.True(t, view.NewsletterSubscribed)

	// An existing subscription does not fail a registration.
	in2 := input("already@example.com")
	in2.Newsletter = true
	_, err = f.news.Subscribe(ctx, domain.SubscribeInput{Email: "already@example.com"})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, in2, domain.RequestMetadata{})
	require.NoError(t, err)
}

func TestAdmin_AddToNewsletterIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.svc.Create(ctx, admin, input("late@example.com"))
	require.NoError(t, err)
	assert.Empty(t, f.notifier.tasks)

	for i := 0; i < 2; i++ {
		view, err := f.svc.AddToNewsletter(ctx, admin, r.RegistrationNumber)
		require.NoError(t, err)
		assert.True(t, view.NewsletterSubscribed)
		assert.True(t, view.Newsletter)
	}
	st, err := f.news.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Active)
}

func TestAdmin_UpdateStatusAndDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.svc.Create(ctx, admin, input("status@example.com"))
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(ctx, admin, r.ID, domain.RegistrationConfirmed)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationConfirmed, got.Metadata.Status)

	_, err = f.svc.UpdateStatus(ctx, admin, r.ID, "lost")
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))

	lower := "tgs" + r.RegistrationNumber[3:]
	_, err = f.svc.Verify(ctx, lower)
	require.NoError(t, err, "registration numbers match case-insensitively")

	_, err = f.svc.Delete(ctx, admin, r.RegistrationID)
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, r.RegistrationNumber)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdmin_UpdateEmailConflict(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.Create(ctx, admin, input("taken@example.com"))
	require.NoError(t, err)
	r, err := f.svc.Create(ctx, admin, input("mine@example.com"))
	require.NoError(t, err)

	email := "Taken@Example.com"
	_, err = f.svc.Update(ctx, admin, r.ID, registration.Update{Email: &email})
	assert.ErrorIs(t, err, registration.ErrAlreadyRegistered)

	company := "Langley"
	interests := []string{"fraud-detection"}
	got, err := f.svc.Update(ctx, admin, r.ID, registration.Update{Company: &company, Interests: &interests})
	require.NoError(t, err)
	assert.Equal(t, "Langley", got.Company)
	assert.Equal(t, []domain.Interest{domain.InterestFraudDetection}, got.Interests)
}

func TestList_PaginationFiltersAndStats(t *testing.T) {
	n := 0
	clock := fixedTime
	f := newFixture(registration.WithNumberSource(func() int { n++; return n }),
		registration.WithClock(func() time.Time { clock = clock.Add(time.Second); return clock }))
	ctx := context.Background()

	levels := []string{"beginner", "intermediate", "advanced", "expert"}
	for i := 0; i < 23; i++ {
		in := input(fmt.Sprintf("attendee%02d@example.com", i))
		in.Experience = levels[i%len(levels)]
		in.Newsletter = i < 3
		_, err := f.svc.Submit(ctx, in, domain.RequestMetadata{})
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, query.List{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.Equal(t, 23, page.Total)
	assert.Equal(t, 3, page.Pages)
	// Page 3 holds the three oldest, which opted in to the newsletter.
	for _, v := range page.Items {
		assert.True(t, v.NewsletterSubscribed, v.Email)
	}

	page, err = f.svc.List(ctx, query.List{Experience: "beginner"})
	require.NoError(t, err)
	assert.Equal(t, 6, page.Total)

	page, err = f.svc.List(ctx, query.List{Search: "attendee1", Experience: "advanced"})
	require.NoError(t, err)
	for _, v := range page.Items {
		assert.Equal(t, domain.ExperienceAdvanced, v.Experience)
	}

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 23, st.Total)
	assert.Equal(t, st.Total, st.Registered+st.Confirmed+st.Cancelled+st.Attended)
	sum := 0
	for _, c := range st.ByExperience {
		sum += c
	}
	assert.Equal(t, 23, sum)
	assert.Equal(t, 3, st.NewsletterOptIns)
}
