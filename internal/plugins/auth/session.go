package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// sessionTokenBytes is the number of random bytes in a session token.
// 64 bytes = 512 bits of entropy, hex-encoded to 128 characters.
const sessionTokenBytes = 64

// DefaultSessionTTL is the sliding session window.
const DefaultSessionTTL = 7 * 24 * time.Hour

// DefaultCookieName is the cookie that carries the session token.
const DefaultCookieName = "session_id"

// ErrUnprivilegedSession is returned when asked to open a session for a user
// whose role cannot hold one.
var ErrUnprivilegedSession = errors.New("user role cannot hold a session")

// SessionService issues, reads, renews, and revokes sessions. It holds no
// per-session state of its own; every call goes to the SessionStore.
type SessionService interface {
	// CreateUserSession opens a new session for user and writes its token
	// to the cookie jar.
	CreateUserSession(ctx context.Context, user *User, cookies CookieJar) error

	// GetUserFromSession returns the session named by the cookie, or nil
	// when there is no cookie or no valid session behind it.
	GetUserFromSession(ctx context.Context, cookies CookieJar) (*UserSession, error)

	// RemoveUserFromSession clears the cookie and deletes the session.
	RemoveUserFromSession(ctx context.Context, cookies CookieJar) error

	// UpdateUserSessionExpiration restarts the session's TTL and the
	// cookie's expiry. A missing session is left missing.
	UpdateUserSessionExpiration(ctx context.Context, cookies CookieJar) error
}

// SessionOptions configures cookie and lifetime behavior.
type SessionOptions struct {
	// TTL is the sliding window; defaults to DefaultSessionTTL.
	TTL time.Duration

	// CookieName defaults to DefaultCookieName.
	CookieName string

	// Insecure drops the Secure cookie attribute for plain-HTTP development.
	Insecure bool
}

// sessionService implements SessionService on a SessionStore.
type sessionService struct {
	store      SessionStore
	ttl        time.Duration
	cookieName string
	secure     bool

	now      func() time.Time
	newToken func() (string, error)
}

// NewSessionService creates a session service backed by store.
func NewSessionService(store SessionStore, opts SessionOptions) SessionService {
	if opts.TTL <= 0 {
		opts.TTL = DefaultSessionTTL
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	return &sessionService{
		store:      store,
		ttl:        opts.TTL,
		cookieName: opts.CookieName,
		secure:     !opts.Insecure,
		now:        time.Now,
		newToken:   generateSessionToken,
	}
}

// CreateUserSession implements SessionService. The store is written before
// the cookie so a failed write never leaves the client holding a token.
func (s *sessionService) CreateUserSession(ctx context.Context, user *User, cookies CookieJar) error {
	if !user.Role.IsPrivileged() {
		return ErrUnprivilegedSession
	}

	token, err := s.newToken()
	if err != nil {
		return fmt.Errorf("generating session token: %w", err)
	}

	session := UserSession{ID: user.ID, Role: user.Role}
	if err := s.store.Set(ctx, token, session, s.ttl); err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	s.setCookie(token, cookies)
	return nil
}

// GetUserFromSession implements SessionService.
func (s *sessionService) GetUserFromSession(ctx context.Context, cookies CookieJar) (*UserSession, error) {
	token, ok := cookies.Get(s.cookieName)
	if !ok {
		return nil, nil
	}

	session, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	return session, nil
}

// RemoveUserFromSession implements SessionService. The cookie goes first:
// the user is logged out in their browser even if the store is down.
func (s *sessionService) RemoveUserFromSession(ctx context.Context, cookies CookieJar) error {
	token, ok := cookies.Get(s.cookieName)
	if !ok {
		return nil
	}

	cookies.Delete(s.cookieName)

	if err := s.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

// UpdateUserSessionExpiration implements SessionService. Only the TTL is
// restarted, so the role captured at sign-in stays in effect until the user
// signs in again. The cookie is re-issued only when the record still exists
// at refresh time.
func (s *sessionService) UpdateUserSessionExpiration(ctx context.Context, cookies CookieJar) error {
	token, ok := cookies.Get(s.cookieName)
	if !ok {
		return nil
	}

	session, err := s.store.Get(ctx, token)
	if err != nil {
		return fmt.Errorf("looking up session for renewal: %w", err)
	}
	if session == nil {
		return nil
	}

	refreshed, err := s.store.Refresh(ctx, token, s.ttl)
	if err != nil {
		return fmt.Errorf("renewing session: %w", err)
	}
	if !refreshed {
		return nil
	}

	s.setCookie(token, cookies)
	return nil
}

// setCookie writes the session cookie. Secure + HttpOnly keep the token
// away from plain HTTP and scripts; Lax lets top-level navigation carry it
// while blocking most cross-site POSTs.
func (s *sessionService) setCookie(token string, cookies CookieJar) {
	cookies.Set(&http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  s.now().Add(s.ttl),
		MaxAge:   int(s.ttl.Seconds()),
		Secure:   s.secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateSessionToken creates a cryptographically random hex-encoded token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
