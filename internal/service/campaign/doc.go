// Package campaign sends one-off bulk emails from the admin dashboard.
//
// A campaign targets an audience (active newsletter subscribers or
// non-cancelled registrations) with either a stored email template or an
// ad-hoc subject and body. Recipients are mailed one at a time; a failure is
// recorded and the run continues. Only one campaign may be sending at a
// time across all server processes.
package campaign
