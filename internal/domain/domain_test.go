package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternalID(t *testing.T) {
	id := NewInternalID()
	assert.Len(t, id, InternalIDLength)
	assert.True(t, IsInternalID(id))
	assert.True(t, IsInternalID(strings.ToUpper(id)))
	assert.NotEqual(t, id, NewInternalID())

	assert.False(t, IsInternalID(""))
	assert.False(t, IsInternalID("not-an-id"))
	assert.False(t, IsInternalID("zzzzzzzzzzzzzzzzzzzzzzzz"))
	assert.False(t, IsInternalID(NewToken()))
}

func TestContactStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to ContactStatus
		want     bool
	}{
		{ContactPending, ContactProcessed, true},
		{ContactPending, ContactResponded, true},
		{ContactProcessed, ContactResponded, true},
		{ContactProcessed, ContactProcessed, true},
		{ContactResponded, ContactPending, false},
		{ContactProcessed, ContactPending, false},
		{ContactPending, ContactStatus("archived"), false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanMoveTo(tt.to))
		})
	}

	assert.Equal(t, []ContactStatus{ContactPending, ContactProcessed}, ContactStatusesUpTo(ContactProcessed))
	assert.Len(t, ContactStatusesUpTo(ContactResponded), 3)
}

func TestNewSubscription_DefaultsAndDroppedKeys(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sub, dropped := NewSubscription(SubscribeInput{
		Email: "  Foo@Bar.COM ",
		Metadata: map[string]string{
			MetaSourcePage: "homepage",
			MetaUserAgent:  "test-agent",
			"campaign":     "spring",
		},
	}, now)

	assert.Equal(t, "foo@bar.com", sub.Email)
	assert.True(t, sub.IsActive)
	assert.Equal(t, SubscriptionSubscribed, sub.Metadata.Status)
	assert.Equal(t, "homepage", sub.Metadata.SourcePage)
	assert.Equal(t, SourceNewsletter, sub.Metadata.Source)
	assert.Equal(t, now, sub.Metadata.Timestamp)
	assert.Equal(t, FrequencyWeekly, sub.Preferences.Frequency)
	assert.Equal(t, DefaultTopics(), sub.Preferences.Topics)
	assert.Equal(t, []string{"campaign"}, dropped)
	assert.True(t, sub.Consistent())
}

func TestSubscriptionSetStatus_KeepsLockstep(t *testing.T) {
	sub, _ := NewSubscription(SubscribeInput{Email: "a@b.co"}, time.Now())
	for _, st := range []SubscriptionStatus{SubscriptionUnsubscribed, SubscriptionBounced, SubscriptionSubscribed} {
		sub.SetStatus(st)
		assert.True(t, sub.Consistent(), st)
	}
}

func TestRegistrationNumberFormat(t *testing.T) {
	assert.Equal(t, "TGS20250042", FormatRegistrationNumber("TGS", 2025, 42))
	assert.Equal(t, "TGS20259999", FormatRegistrationNumber("TGS", 2025, 9999))
	assert.Equal(t, "TGS20250000", FormatRegistrationNumber("TGS", 2025, 10000))
	assert.Equal(t, "TGS20250042", NormalizeRegistrationNumber(" tgs20250042 "))
	assert.Equal(t, "TGS20250042", FormatRegistrationNumber("tgs", 2025, 42))
}

func TestDuplicateKeyError(t *testing.T) {
	err := fmt.Errorf("insert: %w", &DuplicateKeyError{Field: "email"})
	assert.True(t, errors.Is(err, ErrDuplicateKey))
	assert.True(t, IsDuplicateOn(err, "email"))
	assert.False(t, IsDuplicateOn(err, "registration_number"))
}

func TestValidationError(t *testing.T) {
	v := NewValidationError("email", "Email is required")
	v.Add("email", "Please provide a valid email address")
	v.Add("name", "Name is required")
	require.False(t, v.Empty())
	assert.Len(t, v.Fields["email"], 2)
	assert.Equal(t, "validation failed: email: Email is required; Please provide a valid email address, name: Name is required", v.Error())

	var empty *ValidationError
	assert.True(t, empty.Empty())
}
