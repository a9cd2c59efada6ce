package lookup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techgrid/site-backend/internal/domain"
)

type rec struct{ name string }

// table is a tiny keyed store that records which keys were tried.
type table struct {
	rows  map[Key]*rec
	tried []Key
	fail  error
}

func (tb *table) find(_ context.Context, k Key) (*rec, error) {
	tb.tried = append(tb.tried, k)
	if tb.fail != nil {
		return nil, tb.fail
	}
	if r, ok := tb.rows[k]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func TestRules_Keys(t *testing.T) {
	id := domain.NewInternalID()

	keys := Registrations.Keys("tgs20250042")
	assert.Equal(t, []Key{
		{FieldRegistrationID, "tgs20250042"},
		{FieldRegistrationNumber, "TGS20250042"},
	}, keys, "non-hex identifiers skip the internal id rule")

	keys = Contacts.Keys(id)
	assert.Equal(t, []Key{{FieldContactID, id}, {FieldID, id}}, keys)

	keys = Subscriptions.Keys(" Foo@Bar.com ")
	assert.Equal(t, Key{FieldEmail, "foo@bar.com"}, keys[1])

	assert.Empty(t, Contacts.Keys("   "))
}

func TestResolve_FirstMatchWins(t *testing.T) {
	tb := &table{rows: map[Key]*rec{
		{FieldSubscriptionID, "tok"}: {name: "by-token"},
		{FieldEmail, "tok"}:          {name: "by-email"},
	}}

	got, key, err := Resolve(context.Background(), "tok", Subscriptions, tb.find)
	require.NoError(t, err)
	assert.Equal(t, "by-token", got.name)
	assert.Equal(t, FieldSubscriptionID, key.Field)
	assert.Len(t, tb.tried, 1, "later rules must not be consulted after a match")
}

func TestResolve_RegistrationNumberCaseInsensitive(t *testing.T) {
	tb := &table{rows: map[Key]*rec{
		{FieldRegistrationNumber, "TGS20250042"}: {name: "reg"},
	}}

	for _, id := range []string{"TGS20250042", "tgs20250042", "Tgs20250042"} {
		got, key, err := Resolve(context.Background(), id, Registrations, tb.find)
		require.NoError(t, err, id)
		assert.Equal(t, "reg", got.name)
		assert.Equal(t, "TGS20250042", key.Value)
	}
}

func TestResolve_WellFormedMissingIDIsNotFound(t *testing.T) {
	tb := &table{rows: map[Key]*rec{}}

	_, _, err := Resolve(context.Background(), domain.NewInternalID(), Contacts, tb.find)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Len(t, tb.tried, 2)

	_, _, err = Resolve(context.Background(), "", Contacts, tb.find)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolve_StoreErrorAborts(t *testing.T) {
	boom := errors.New("connection refused")
	tb := &table{fail: boom}

	_, _, err := Resolve(context.Background(), "anything", Registrations, tb.find)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, tb.tried, 1)
}
