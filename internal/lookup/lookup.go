// Package lookup resolves a caller-supplied identifier to a stored record.
//
// Admin and public endpoints accept "an identifier" that may be a public
// token, a business key or a storage-internal id. Each entity declares an
// ordered list of rules; Resolve tries them in order and stops at the first
// match, returning the key that matched so the caller can run its atomic
// update or delete against exactly that key.
package lookup

import (
	"context"
	"errors"
	"strings"

	"github.com/techgrid/site-backend/internal/domain"
)

// Field names double as storage column names.
const (
	FieldID                 = "id"
	FieldContactID          = "contact_id"
	FieldRegistrationID     = "registration_id"
	FieldRegistrationNumber = "registration_number"
	FieldSubscriptionID     = "subscription_id"
	FieldEmail              = "email"
)

// Key is a single field=value lookup.
type Key struct {
	Field string
	Value string
}

func (k Key) String() string { return k.Field + "=" + k.Value }

// ByID is the key for a storage-internal id.
func ByID(id string) Key { return Key{Field: FieldID, Value: id} }

// Rule is one step of a resolution chain.
type Rule struct {
	Field     string
	Normalize func(string) string
	// Applies, when set, skips the rule for identifiers that cannot match it.
	Applies func(string) bool
}

// Rules is an ordered resolution chain.
type Rules []Rule

// Keys returns the lookups to try for id, in order.
func (rs Rules) Keys(id string) []Key {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	keys := make([]Key, 0, len(rs))
	for _, r := range rs {
		if r.Applies != nil && !r.Applies(id) {
			continue
		}
		v := id
		if r.Normalize != nil {
			v = r.Normalize(id)
		}
		keys = append(keys, Key{Field: r.Field, Value: v})
	}
	return keys
}

// Finder loads a single record by key and returns domain.ErrNotFound when
// nothing matches.
type Finder[T any] func(ctx context.Context, key Key) (*T, error)

// Resolve walks rules in order and returns the first record found together
// with the key that found it. It returns domain.ErrNotFound when no rule
// matches. Any other error aborts the walk.
func Resolve[T any](ctx context.Context, id string, rules Rules, find Finder[T]) (*T, Key, error) {
	for _, key := range rules.Keys(id) {
		rec, err := find(ctx, key)
		if err == nil {
			return rec, key, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, Key{}, err
		}
	}
	return nil, Key{}, domain.ErrNotFound
}

var internalID = Rule{Field: FieldID, Normalize: domain.NormalizeInternalID, Applies: domain.IsInternalID}

// Resolution chains per entity: public token, then business key, then
// internal id.
var (
	Contacts = Rules{
		{Field: FieldContactID},
		internalID,
	}
	Registrations = Rules{
		{Field: FieldRegistrationID},
		{Field: FieldRegistrationNumber, Normalize: domain.NormalizeRegistrationNumber},
		internalID,
	}
	Subscriptions = Rules{
		{Field: FieldSubscriptionID},
		{Field: FieldEmail, Normalize: domain.NormalizeEmail},
		internalID,
	}
	Templates = Rules{
		internalID,
	}
)
