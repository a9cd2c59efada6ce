package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/lookup"
	"github.com/techgrid/site-backend/internal/query"
	"github.com/techgrid/site-backend/internal/service/contact"
	"github.com/techgrid/site-backend/internal/service/newsletter"
)

func sub(email string) *domain.Subscription {
	s, _ := domain.NewSubscription(domain.SubscribeInput{Email: email}, time.Now().UTC())
	return s
}

func TestCollection_UniqueFieldsUnderConcurrency(t *testing.T) {
	repo := NewNewsletterRepo()
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Create(ctx, sub("same@example.com"))
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, domain.IsDuplicateOn(err, lookup.FieldEmail), "got %v", err)
	}
	assert.Equal(t, 1, ok)
}

func TestCollection_ReturnsCopies(t *testing.T) {
	repo := NewNewsletterRepo()
	ctx := context.Background()
	s := sub("copy@example.com")
	require.NoError(t, repo.Create(ctx, s))

	s.Email = "mutated@example.com"
	got, err := repo.FindOne(ctx, lookup.ByID(s.ID))
	require.NoError(t, err)
	assert.Equal(t, "copy@example.com", got.Email)

	got.Tags = append(got.Tags, "x")
	again, _ := repo.FindOne(ctx, lookup.ByID(s.ID))
	assert.Empty(t, again.Tags)
}

func TestNewsletterRepo_GuardAndLockstep(t *testing.T) {
	repo := NewNewsletterRepo()
	ctx := context.Background()
	s := sub("guard@example.com")
	require.NoError(t, repo.Create(ctx, s))

	subscribed := domain.SubscriptionSubscribed
	_, err := repo.FindOneAndUpdate(ctx, lookup.ByID(s.ID), newsletter.Patch{Status: &subscribed, UnlessStatus: &subscribed})
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)

	bounced := domain.SubscriptionBounced
	got, err := repo.FindOneAndUpdate(ctx, lookup.ByID(s.ID), newsletter.Patch{Status: &bounced})
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.True(t, got.Consistent())

	_, err = repo.FindOneAndUpdate(ctx, lookup.ByID(domain.NewInternalID()), newsletter.Patch{Status: &bounced})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNewsletterRepo_UpdateCannotStealEmail(t *testing.T) {
	repo := NewNewsletterRepo()
	ctx := context.Background()
	a, b := sub("a@example.com"), sub("b@example.com")
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	email := "a@example.com"
	_, err := repo.FindOneAndUpdate(ctx, lookup.ByID(b.ID), newsletter.Patch{Email: &email})
	assert.True(t, domain.IsDuplicateOn(err, lookup.FieldEmail))

	got, _ := repo.FindOne(ctx, lookup.ByID(b.ID))
	assert.Equal(t, "b@example.com", got.Email, "failed update leaves the row untouched")
}

func TestContactRepo_StatusGuard(t *testing.T) {
	repo := NewContactRepo()
	ctx := context.Background()
	c := domain.NewContact(domain.ContactInput{Name: "N", Email: "n@example.com"}, domain.RequestMetadata{}, time.Now())
	require.NoError(t, repo.Create(ctx, c))

	responded := domain.ContactResponded
	_, err := repo.FindOneAndUpdate(ctx, lookup.Key{Field: lookup.FieldContactID, Value: c.ContactID}, contact.Patch{Status: &responded})
	require.NoError(t, err)

	pending := domain.ContactPending
	_, err = repo.FindOneAndUpdate(ctx, lookup.ByID(c.ID), contact.Patch{
		Status:     &pending,
		IfStatusIn: domain.ContactStatusesUpTo(pending),
	})
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
}

func TestCollection_PageOrdersNewestFirst(t *testing.T) {
	repo := NewContactRepo()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		c := domain.NewContact(domain.ContactInput{Name: "N", Email: "n@example.com"}, domain.RequestMetadata{}, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, c))
	}

	items, total, err := repo.Find(ctx, query.List{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	assert.True(t, items[0].CreatedAt.After(items[1].CreatedAt))

	items, _, err = repo.Find(ctx, query.List{Page: 4, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, items)
}
