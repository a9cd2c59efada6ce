// Package auth guards the admin dashboard with a single configured login.
// Sessions live server-side and are addressed by an opaque cookie.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/techgrid/site-backend/internal/config"
	"github.com/techgrid/site-backend/internal/domain"
	"github.com/techgrid/site-backend/internal/pkg/httputil"
	"github.com/techgrid/site-backend/internal/pkg/logger"
)

// Session represents an authenticated admin session
type Session struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Actor returns the identity admin operations are performed as.
func (s *Session) Actor() domain.Actor { return domain.Actor{Email: s.Email} }

// Manager handles dashboard login and session lookup
type Manager struct {
	cfg   config.AuthConfig
	store SessionStore
	now   func() time.Time
}

// NewManager creates a session manager. With no password hash configured
// every login is refused.
func NewManager(cfg config.AuthConfig, store SessionStore) *Manager {
	if cfg.PasswordHash == "" {
		logger.Warn("auth: no admin password hash configured, dashboard login disabled")
	}
	if cfg.SessionTTLHours <= 0 {
		cfg.SessionTTLHours = 24
	}
	return &Manager{cfg: cfg, store: store, now: time.Now}
}

// generateSessionID creates a random session ID
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// checkCredentials compares both fields without short-circuiting so a wrong
// email and a wrong password take the same time.
func (m *Manager) checkCredentials(c credentials) bool {
	if m.cfg.PasswordHash == "" {
		return false
	}
	want := strings.ToLower(strings.TrimSpace(m.cfg.AdminEmail))
	got := strings.ToLower(strings.TrimSpace(c.Email))
	emailOK := want != "" && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(m.cfg.PasswordHash), []byte(c.Password)) == nil
	return emailOK && passOK
}

// HandleLogin checks the posted credentials and starts a session
func (m *Manager) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !httputil.Decode(w, r, &c) {
		return
	}
	if !m.checkCredentials(c) {
		logger.Warn("auth: login rejected", "email", c.Email)
		httputil.Unauthorized(w, "Invalid email or password")
		return
	}

	id, err := generateSessionID()
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	now := m.now()
	s := &Session{Email: m.cfg.AdminEmail, CreatedAt: now, ExpiresAt: now.Add(m.cfg.SessionTTL())}
	if err := m.store.Save(r.Context(), id, s, m.cfg.SessionTTL()); err != nil {
		httputil.InternalError(w, err)
		return
	}
	logger.Info("auth: admin logged in", "email", s.Email)

	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.cfg.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	httputil.OK(w, "Login successful", map[string]interface{}{"email": s.Email, "expiresAt": s.ExpiresAt})
}

// HandleLogout ends the session, if any
func (m *Manager) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(m.cfg.CookieName); err == nil {
		if err := m.store.Delete(r.Context(), cookie.Value); err != nil {
			httputil.InternalError(w, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:   m.cfg.CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	httputil.OK(w, "Logged out successfully", nil)
}

// HandleSession reports whether the caller is logged in
func (m *Manager) HandleSession(w http.ResponseWriter, r *http.Request) {
	s := m.GetSession(r)
	if s == nil {
		httputil.OK(w, "", map[string]interface{}{"authenticated": false})
		return
	}
	httputil.OK(w, "", map[string]interface{}{
		"authenticated": true,
		"email":         s.Email,
		"loginTime":     s.CreatedAt,
		"expiresAt":     s.ExpiresAt,
	})
}

// GetSession returns the session for the current request, or nil if not authenticated
func (m *Manager) GetSession(r *http.Request) *Session {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	s, err := m.store.Get(r.Context(), cookie.Value)
	if err != nil {
		logger.Error("auth: session lookup failed", "error", err)
		return nil
	}
	if s == nil || m.now().After(s.ExpiresAt) {
		return nil
	}
	return s
}

// RequireAuth is middleware that rejects requests without a live session and
// puts the session's actor into the request context.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := m.GetSession(r)
		if s == nil {
			httputil.Unauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), s.Actor())))
	})
}

type actorKey struct{}

// WithActor returns ctx carrying a.
func WithActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor RequireAuth stored in ctx.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(domain.Actor)
	return a, ok
}
