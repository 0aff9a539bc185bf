// Package session tracks signed-in clients. Each session owns a Library and a
// playback Controller that live exactly as long as the sign-in.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"soundstorm/internal/controller"
	"soundstorm/internal/library"
	"soundstorm/internal/media"
	"soundstorm/pkg/models"

	"github.com/sirupsen/logrus"
)

const defaultCookieName = "soundstorm_session"

// Session is one signed-in client.
type Session struct {
	Token     string
	User      models.User
	Library   *library.Store
	Player    *controller.Controller
	CreatedAt time.Time

	mu        sync.Mutex
	expiresAt time.Time
}

// ExpiresAt returns the current expiry.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// BackendFactory builds the media backend for a new session.
type BackendFactory func() media.Backend

// Options configures a Manager.
type Options struct {
	Duration      time.Duration
	CookieName    string
	SecureCookies bool
	SweepInterval time.Duration
	Player        controller.Options
}

// Manager issues and tears down sessions.
type Manager struct {
	sessions   map[string]*Session
	mutex      sync.RWMutex
	opts       Options
	newBackend BackendFactory
	logger     *logrus.Entry
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a session manager and starts the expiry sweep.
func NewManager(newBackend BackendFactory, opts Options, logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Duration <= 0 {
		opts.Duration = 24 * time.Hour
	}
	if opts.CookieName == "" {
		opts.CookieName = defaultCookieName
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Minute
	}
	if opts.Player.Logger == nil {
		opts.Player.Logger = logger
	}

	m := &Manager{
		sessions:   make(map[string]*Session),
		opts:       opts,
		newBackend: newBackend,
		logger:     logger,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// SignIn creates a session for user with a fresh playback controller and library.
func (m *Manager) SignIn(user models.User) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	lib := library.NewStore()
	playerOpts := m.opts.Player
	playerOpts.Logger = m.opts.Player.Logger.WithField("user", user.Username)

	now := m.now()
	s := &Session{
		Token:     token,
		User:      user.Public(),
		Library:   lib,
		Player:    controller.New(m.newBackend(), lib, playerOpts),
		CreatedAt: now,
		expiresAt: now.Add(m.opts.Duration),
	}

	m.mutex.Lock()
	m.sessions[token] = s
	m.mutex.Unlock()

	m.logger.WithField("user", user.Username).Info("Session started")
	return s, nil
}

// Get returns a live session. An expired session is torn down.
func (m *Manager) Get(token string) (*Session, bool) {
	m.mutex.RLock()
	s, ok := m.sessions[token]
	m.mutex.RUnlock()
	if !ok {
		return nil, false
	}

	if m.now().After(s.ExpiresAt()) {
		m.SignOut(token)
		return nil, false
	}
	return s, true
}

// Refresh extends a live session's expiry.
func (m *Manager) Refresh(token string) bool {
	s, ok := m.Get(token)
	if !ok {
		return false
	}
	s.mu.Lock()
	s.expiresAt = m.now().Add(m.opts.Duration)
	s.mu.Unlock()
	return true
}

// SignOut ends a session: playback stops, the sleep timer is cancelled and
// the queue is cleared.
func (m *Manager) SignOut(token string) bool {
	m.mutex.Lock()
	s, ok := m.sessions[token]
	delete(m.sessions, token)
	m.mutex.Unlock()

	if !ok {
		return false
	}
	m.teardown(s)
	return true
}

// Count returns the number of sessions held.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Sweep tears down every expired session and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()
	var expired []*Session

	m.mutex.Lock()
	for token, s := range m.sessions {
		if now.After(s.ExpiresAt()) {
			expired = append(expired, s)
			delete(m.sessions, token)
		}
	}
	m.mutex.Unlock()

	for _, s := range expired {
		m.teardown(s)
	}
	return len(expired)
}

// Close stops the sweep and tears down every session.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mutex.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for token, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, token)
	}
	m.mutex.Unlock()

	for _, s := range all {
		m.teardown(s)
	}
}

func (m *Manager) teardown(s *Session) {
	if err := s.Player.Close(); err != nil {
		m.logger.WithError(err).Warn("Failed to release media backend")
	}
	m.logger.WithField("user", s.User.Username).Info("Session ended")
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.WithField("count", n).Debug("Expired sessions removed")
			}
		case <-m.stop:
			return
		}
	}
}

// SetCookie writes the session cookie.
func (m *Manager) SetCookie(w http.ResponseWriter, s *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    s.Token,
		Expires:  s.ExpiresAt(),
		HttpOnly: true,
		Secure:   m.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
}

// FromRequest resolves the session named by the request cookie.
func (m *Manager) FromRequest(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(m.opts.CookieName)
	if err != nil {
		return nil, false
	}
	return m.Get(cookie.Value)
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
