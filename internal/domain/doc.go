// Package domain defines the core record types for the site backend:
// contact submissions, event registrations, newsletter subscriptions and
// email templates.
//
// Types in this package are value objects with no database dependencies and
// no HTTP concerns. They are the shared language between handlers, services,
// and repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON tags and validate tags are allowed (they're metadata, not behavior)
//   - Validation and state-transition helpers are allowed (pure functions)
//   - Constants and enums belong here
package domain
