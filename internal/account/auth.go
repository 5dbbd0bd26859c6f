package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"renderly/internal/domain"
	"renderly/internal/infra"
	"renderly/internal/security"
	"renderly/internal/session"
)

// GoogleVerifier validates a Google ID token and returns its claims.
type GoogleVerifier interface {
	VerifyIDToken(ctx context.Context, token string) (map[string]any, error)
}

// Authenticator resolves credentials against the user store. Password logins
// check a bcrypt hash; Google logins verify the ID token and upsert the
// account so first-time federated users get a row.
type Authenticator struct {
	users  domain.UserRepository
	google GoogleVerifier
	logger *infra.Logger
}

func NewAuthenticator(users domain.UserRepository, google GoogleVerifier, logger *infra.Logger) *Authenticator {
	return &Authenticator{users: users, google: google, logger: logger}
}

func (a *Authenticator) Authenticate(ctx context.Context, creds domain.Credentials) (string, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	user, err := a.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrAuthRejected
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if user.PasswordHash == "" || !security.VerifyPassword(user.PasswordHash, creds.Password) {
		return "", domain.ErrAuthRejected
	}
	return user.ID, nil
}

func (a *Authenticator) AuthenticateProvider(ctx context.Context, provider, assertion string) (string, error) {
	if provider != "google" {
		return "", fmt.Errorf("%w: unsupported provider %q", domain.ErrProviderError, provider)
	}
	if a.google == nil {
		return "", fmt.Errorf("%w: google sign-in not configured", domain.ErrProviderError)
	}

	claims, err := a.google.VerifyIDToken(ctx, assertion)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderError, err)
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" || email == "" {
		return "", fmt.Errorf("%w: token missing subject or email", domain.ErrProviderError)
	}
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)
	locale, _ := claims["locale"].(string)
	if locale == "" {
		locale = "en"
	}

	user, err := a.users.UpsertByGoogleSub(ctx, &domain.User{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(email),
		Name:      name,
		Picture:   picture,
		GoogleSub: sub,
		Locale:    locale,
	})
	if err != nil {
		return "", fmt.Errorf("upsert google user: %w", err)
	}
	return user.ID, nil
}

var _ session.Authenticator = (*Authenticator)(nil)
