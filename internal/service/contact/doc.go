// Package contact implements contact-form submissions and their admin
// handling: listing, editing, forward-only status changes, replies and
// deletion.
//
// The service depends on the Repository interface defined in
// repository.go. Repository implementations live in repository/postgres/
// and repository/memory/.
package contact
