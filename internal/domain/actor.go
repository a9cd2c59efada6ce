package domain

// Actor identifies who performs an admin operation. It is resolved from the
// authenticated session and passed explicitly into admin service calls.
type Actor struct {
	Email string `json:"email"`
}

// SystemActor is used for work the backend does on its own behalf.
var SystemActor = Actor{Email: "system"}

// Name returns a printable identity for audit logging.
func (a Actor) Name() string {
	if a.Email == "" {
		return "admin"
	}
	return a.Email
}
