// Package registration handles conference registrations: public sign-up with
// registration-number assignment, the optional newsletter opt-in, the
// confirmation emails and the admin operations.
package registration
