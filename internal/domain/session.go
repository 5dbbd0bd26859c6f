package domain

// SessionStatus enumerates authentication lifecycle states.
type SessionStatus string

const (
	SessionSignedOut      SessionStatus = "signed_out"
	SessionAuthenticating SessionStatus = "authenticating"
	SessionSignedIn       SessionStatus = "signed_in"
	SessionFailed         SessionStatus = "failed"
)

// Session is the authentication state owned by a single client. UserID is set
// only while signed in; Error carries the last failure message for retry UIs.
type Session struct {
	Status SessionStatus
	UserID string
	Error  string
}

// Credentials are first-party email/password login inputs.
type Credentials struct {
	Email    string
	Password string
}

// SignedIn reports whether the session currently holds an authenticated user.
func (s Session) SignedIn() bool {
	return s.Status == SessionSignedIn && s.UserID != ""
}
