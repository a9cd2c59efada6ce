// Package newsletter implements the newsletter subscription lifecycle:
// subscribe (with reactivation), unsubscribe, resubscribe, bounce handling
// and the admin operations over subscriptions.
//
// A subscription's isActive flag always mirrors its lifecycle status. Every
// status change goes through Patch.Status, which stores both from the one
// value, and every transition is a guarded atomic update so concurrent
// callers cannot both win.
package newsletter
