// Package session owns the authentication state machine for a single client:
// signed_out -> authenticating -> signed_in or failed, failed -> retry,
// signed_in -> signed_out on logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"renderly/internal/domain"
)

// Authenticator performs the external credential check.
type Authenticator interface {
	Authenticate(ctx context.Context, creds domain.Credentials) (userID string, err error)
	AuthenticateProvider(ctx context.Context, provider, assertion string) (userID string, err error)
}

// Manager serializes session transitions. Only one authentication attempt may
// be in flight; a logout invalidates any attempt still waiting on the
// authenticator so a late answer cannot resurrect the session.
type Manager struct {
	mu       sync.Mutex
	session  domain.Session
	attempt  uint64
	auth     Authenticator
	onLogout func()
	logger   zerolog.Logger
}

// NewManager constructs a signed-out manager backed by the given
// authenticator.
func NewManager(auth Authenticator, logger zerolog.Logger) *Manager {
	return &Manager{
		session: domain.Session{Status: domain.SessionSignedOut},
		auth:    auth,
		logger:  logger,
	}
}

// SetLogoutHook registers a callback invoked on every logout, used to detach
// the client's generation job binding.
func (m *Manager) SetLogoutHook(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = fn
}

// Current returns a copy of the session state.
func (m *Manager) Current() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Login authenticates with email/password credentials. Empty fields fail with
// domain.ErrInvalidCredentials without leaving the current state; a login
// while another attempt is authenticating fails with domain.ErrAuthInProgress.
func (m *Manager) Login(ctx context.Context, creds domain.Credentials) (domain.Session, error) {
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		return m.Current(), domain.ErrInvalidCredentials
	}
	attempt, err := m.beginAttempt()
	if err != nil {
		return m.Current(), err
	}
	userID, authErr := m.auth.Authenticate(ctx, creds)
	return m.settleAttempt(attempt, userID, authErr, domain.ErrAuthRejected)
}

// LoginWithProvider authenticates through a federated identity provider.
// Collaborator failures surface as domain.ErrProviderError with retry allowed.
func (m *Manager) LoginWithProvider(ctx context.Context, provider, assertion string) (domain.Session, error) {
	if strings.TrimSpace(provider) == "" || strings.TrimSpace(assertion) == "" {
		return m.Current(), domain.ErrInvalidCredentials
	}
	attempt, err := m.beginAttempt()
	if err != nil {
		return m.Current(), err
	}
	userID, authErr := m.auth.AuthenticateProvider(ctx, provider, assertion)
	return m.settleAttempt(attempt, userID, authErr, domain.ErrProviderError)
}

// Logout always succeeds and resets to signed_out. An in-flight generation
// job is allowed to finish silently; the logout hook drops its UI binding.
func (m *Manager) Logout() domain.Session {
	m.mu.Lock()
	m.attempt++
	m.session = domain.Session{Status: domain.SessionSignedOut}
	hook := m.onLogout
	out := m.session
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out
}

func (m *Manager) beginAttempt() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Status == domain.SessionAuthenticating {
		return 0, domain.ErrAuthInProgress
	}
	m.attempt++
	m.session = domain.Session{Status: domain.SessionAuthenticating}
	return m.attempt, nil
}

func (m *Manager) settleAttempt(attempt uint64, userID string, authErr, sentinel error) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempt != attempt {
		// Superseded by logout while the authenticator was running. Even a
		// successful answer must not hand the caller a usable session.
		m.logger.Debug().Msg("session: stale authentication result dropped")
		if authErr == nil {
			authErr = fmt.Errorf("%w: attempt superseded by logout", domain.ErrAuthRejected)
		}
		return m.session, authErr
	}
	if authErr != nil {
		if !errors.Is(authErr, domain.ErrInvalidCredentials) && !errors.Is(authErr, domain.ErrAuthRejected) && !errors.Is(authErr, domain.ErrProviderError) {
			authErr = fmt.Errorf("%w: %v", sentinel, authErr)
		}
		m.session = domain.Session{Status: domain.SessionFailed, Error: authErr.Error()}
		return m.session, authErr
	}
	m.session = domain.Session{Status: domain.SessionSignedIn, UserID: userID}
	return m.session, nil
}
