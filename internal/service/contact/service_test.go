package contact_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/notify"
	"github.com/techgrid/site-backend/internal/query"
	"github.com/techgrid/site-backend/internal/repository/memory"
	"github.com/techgrid/site-backend/internal/service/contact"
)

// recordingNotifier captures tasks so tests can inspect and run them.
type recordingNotifier struct {
	mu    sync.Mutex
	tasks []notify.Task
}

func (n *recordingNotifier) Dispatch(tasks ...notify.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, tasks...)
}

func (n *recordingNotifier) deliverAll(t *testing.T) {
	t.Helper()
	for _, task := range n.tasks {
		if task.OnSent != nil {
			require.NoError(t, task.OnSent(context.Background(), time.Now()))
		}
	}
}

var admin = domain.Actor{Email: "admin@techgrid.example"}

func validInput() domain.ContactInput {
	return domain.ContactInput{
		Name:    "Jane Doe",
		Email:   "Jane.Doe@Example.com",
		Phone:   "+1 555 123 4567",
		Subject: "Speaking opportunity",
		Message: "I would love to give a talk at the summit.",
	}
}

func newService() (*contact.Service, *memory.ContactRepo, *recordingNotifier) {
	repo := memory.NewContactRepo()
	n := &recordingNotifier{}
	return contact.NewService(repo, n), repo, n
}

func TestSubmit_StoresAndNotifies(t *testing.T) {
	svc, _, n := newService()
	ctx := context.Background()

	c, err := svc.Submit(ctx, validInput(), domain.RequestMetadata{UserAgent: "ua", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, domain.ContactPending, c.Status)
	assert.Equal(t, "jane.doe@example.com", c.Email)
	assert.Equal(t, domain.SourceContactForm, c.Metadata.Source)
	assert.False(t, c.EmailSent)

	require.Len(t, n.tasks, 2)
	assert.Equal(t, "contact_auto_reply", n.tasks[0].Template)
	assert.Equal(t, "jane.doe@example.com", n.tasks[0].To)
	assert.True(t, n.tasks[1].ToAdmin)

	n.deliverAll(t)
	got, err := svc.Get(ctx, c.ContactID)
	require.NoError(t, err)
	assert.True(t, got.EmailSent)
	assert.NotNil(t, got.EmailSentAt)
	assert.True(t, got.AdminNotified)
}

func TestSubmit_ValidationFailureStoresNothing(t *testing.T) {
	svc, _, n := newService()
	in := validInput()
	in.Message = "short"
	in.Name = "<b></b>"

	_, err := svc.Submit(context.Background(), in, domain.RequestMetadata{})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "message")
	assert.Equal(t, []string{"Name is required"}, verr.Fields["name"])
	assert.Empty(t, n.tasks)

	st, _ := svc.Stats(context.Background())
	assert.Zero(t, st.Total)
}

func TestStatus_OnlyMovesForward(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	c, err := svc.Create(ctx, admin, validInput())
	require.NoError(t, err)

	got, err := svc.UpdateStatus(ctx, admin, c.ID, domain.ContactProcessed)
	require.NoError(t, err)
	assert.Equal(t, domain.ContactProcessed, got.Status)

	_, err = svc.UpdateStatus(ctx, admin, c.ID, domain.ContactPending)
	assert.ErrorIs(t, err, contact.ErrInvalidTransition)

	got, err = svc.UpdateStatus(ctx, admin, c.ContactID, domain.ContactResponded)
	require.NoError(t, err)
	assert.Equal(t, domain.ContactResponded, got.Status)

	_, err = svc.UpdateStatus(ctx, admin, c.ContactID, domain.ContactStatus("archived"))
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestReply_ForcesResponded(t *testing.T) {
	svc, _, n := newService()
	ctx := context.Background()
	c, err := svc.Create(ctx, admin, validInput())
	require.NoError(t, err)
	assert.Empty(t, n.tasks, "admin-created contacts are not emailed")

	got, err := svc.Reply(ctx, admin, c.ContactID, contact.ReplyInput{Message: "Thanks, we'll be in touch."})
	require.NoError(t, err)
	assert.Equal(t, domain.ContactResponded, got.Status)

	require.Len(t, n.tasks, 1)
	assert.Equal(t, "contact_reply", n.tasks[0].Template)
	assert.Equal(t, c.Subject, n.tasks[0].Vars["subject"])
}

func TestUpdate_EditsFields(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	c, _ := svc.Create(ctx, admin, validInput())

	email := "NEW@Example.com"
	got, err := svc.Update(ctx, admin, c.ID, contact.Update{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)

	bad := "R2D2"
	_, err = svc.Update(ctx, admin, c.ID, contact.Update{Name: &bad})
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestGetAndDelete(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	c, _ := svc.Create(ctx, admin, validInput())

	_, err := svc.Get(ctx, domain.NewInternalID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Get(ctx, "garbage")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	deleted, err := svc.Delete(ctx, admin, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ContactID, deleted.ContactID)

	_, err = svc.Get(ctx, c.ContactID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Delete(ctx, admin, c.ContactID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestList_PaginationAndStats(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	statuses := []domain.ContactStatus{domain.ContactPending, domain.ContactProcessed, domain.ContactResponded}
	for i := 0; i < 23; i++ {
		in := validInput()
		in.Email = fmt.Sprintf("user%02d@example.com", i)
		c, err := svc.Create(ctx, admin, in)
		require.NoError(t, err)
		if st := statuses[i%3]; st != domain.ContactPending {
			_, err = svc.UpdateStatus(ctx, admin, c.ID, st)
			require.NoError(t, err)
		}
	}

	page, err := svc.List(ctx, query.List{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.Equal(t, 23, page.Total)
	assert.Equal(t, 3, page.Pages)

	page, err = svc.List(ctx, query.List{Status: "processed"})
	require.NoError(t, err)
	assert.Equal(t, 8, page.Total)
	for _, c := range page.Items {
		assert.Equal(t, domain.ContactProcessed, c.Status)
	}

	page, err = svc.List(ctx, query.List{Search: "USER07"})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 23, st.Total)
	assert.Equal(t, st.Total, st.Pending+st.Processed+st.Responded)
}
