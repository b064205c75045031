package server

import (
	"log/slog"
	"net/http"
	"time"
)

// SessionManager handles the signed, stateless session cookie.
type SessionManager struct {
	codec      *TokenCodec
	cookieName string
	ttl        time.Duration
	logger     *slog.Logger
}

// NewSessionManager constructs a session manager honouring config.
func NewSessionManager(cfg Config, codec *TokenCodec, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		codec:      codec,
		cookieName: cfg.Session.CookieName,
		ttl:        cfg.Session.SessionTTL(),
		logger:     logger,
	}
}

// Fetch returns the identity bound to the request's session cookie, or nil.
// A missing, expired, or tampered cookie all read as "no session"; the caller
// gets no signal about which check failed.
func (sm *SessionManager) Fetch(r *http.Request) *Identity {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	id, err := sm.codec.VerifySession(cookie.Value)
	if err != nil {
		return nil
	}
	return id
}

// Create mints a session token for the identity and sets it as the session
// cookie. The gateway and the app live on different origins, so the cookie is
// cross-site: SameSite=None, Secure, Partitioned.
func (sm *SessionManager) Create(w http.ResponseWriter, id Identity) error {
	token, err := sm.codec.IssueSession(id, sm.ttl)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:        sm.cookieName,
		Value:       token,
		Path:        "/",
		HttpOnly:    true,
		Secure:      true,
		SameSite:    http.SameSiteNoneMode,
		Partitioned: true,
		MaxAge:      int(sm.ttl.Seconds()),
	})
	return nil
}

// Clear removes the session cookie for logout.
func (sm *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:        sm.cookieName,
		Value:       "",
		Path:        "/",
		HttpOnly:    true,
		Secure:      true,
		SameSite:    http.SameSiteNoneMode,
		Partitioned: true,
		MaxAge:      -1,
	})
}
