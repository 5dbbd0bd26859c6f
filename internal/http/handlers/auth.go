package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"renderly/internal/domain"
	"renderly/internal/middleware"
	"renderly/internal/security"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type googleLoginRequest struct {
	IDToken string `json:"id_token"`
}

type sessionDTO struct {
	Status string `json:"status"`
	UserID string `json:"user_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

type authResponse struct {
	Token   string         `json:"token"`
	Session sessionDTO     `json:"session"`
	User    userProfileDTO `json:"user"`
}

type userProfileDTO struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Locale  string `json:"locale"`
	Balance int    `json:"balance"`
}

func sessionToDTO(s domain.Session) sessionDTO {
	return sessionDTO{Status: string(s.Status), UserID: s.UserID, Error: s.Error}
}

func (a *App) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		a.error(w, http.StatusBadRequest, "invalid_input", "valid email required")
		return
	}
	if len(req.Password) < 8 {
		a.error(w, http.StatusBadRequest, "invalid_input", "password must be at least 8 characters")
		return
	}

	if _, err := a.Users.GetByEmail(r.Context(), email); err == nil {
		a.error(w, http.StatusConflict, "email_taken", "email already registered")
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		a.domainError(w, err)
		return
	}

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		a.Logger.Error().Err(err).Msg("hash password failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Locale:       middleware.LocaleFromContext(r.Context()),
	}
	if err := a.Users.Create(r.Context(), user); err != nil {
		a.Logger.Error().Err(err).Msg("create user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create user")
		return
	}

	rt, err := a.Hub.ForUser(r.Context(), user.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", user.ID).Msg("hydrate runtime failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	balance := rt.Ledger.Balance()
	if grant := a.Config.SignupCreditGrant; grant > 0 {
		balance, err = rt.Ledger.Credit(r.Context(), grant, domain.LedgerEntryGrant)
		if err != nil {
			a.Logger.Error().Err(err).Str("user_id", user.ID).Msg("signup grant failed")
		}
	}

	token, err := security.SignSessionToken(a.Config.JWTSecret, user.ID, user.Locale, a.Config.JWTTTL)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign jwt failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}

	a.json(w, http.StatusCreated, authResponse{
		Token:   token,
		Session: sessionDTO{Status: string(domain.SessionSignedIn), UserID: user.ID},
		User: userProfileDTO{
			ID:      user.ID,
			Email:   user.Email,
			Name:    user.Name,
			Locale:  user.Locale,
			Balance: balance,
		},
	})
}

func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	key := strings.ToLower(strings.TrimSpace(req.Email))
	mgr := a.Hub.SessionFor(key)
	sess, err := mgr.Login(r.Context(), domain.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		if !errors.Is(err, domain.ErrAuthInProgress) {
			a.Hub.ReleaseSession(key)
		}
		a.domainError(w, err)
		return
	}
	a.finishLogin(w, r, key, sess)
}

func (a *App) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		a.error(w, http.StatusBadRequest, "invalid_input", "id_token required")
		return
	}
	key := "google:" + req.IDToken
	mgr := a.Hub.SessionFor(key)
	sess, err := mgr.LoginWithProvider(r.Context(), "google", req.IDToken)
	if err != nil {
		if !errors.Is(err, domain.ErrAuthInProgress) {
			a.Hub.ReleaseSession(key)
		}
		a.domainError(w, err)
		return
	}
	a.finishLogin(w, r, key, sess)
}

// finishLogin binds the signed-in session to its user, issues the JWT and
// returns the profile.
func (a *App) finishLogin(w http.ResponseWriter, r *http.Request, key string, sess domain.Session) {
	if err := a.Hub.BindSession(r.Context(), key, sess.UserID); err != nil {
		a.Logger.Error().Err(err).Str("user_id", sess.UserID).Msg("bind session failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	user, err := a.Users.GetByID(r.Context(), sess.UserID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	rt, err := a.Hub.ForUser(r.Context(), sess.UserID)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", sess.UserID).Msg("hydrate runtime failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	token, err := security.SignSessionToken(a.Config.JWTSecret, user.ID, user.Locale, a.Config.JWTTTL)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign jwt failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}

	a.json(w, http.StatusOK, authResponse{
		Token:   token,
		Session: sessionToDTO(sess),
		User: userProfileDTO{
			ID:      user.ID,
			Email:   user.Email,
			Name:    user.Name,
			Picture: user.Picture,
			Locale:  user.Locale,
			Balance: rt.Ledger.Balance(),
		},
	})
}

func (a *App) Logout(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	sess := a.Hub.Logout(userID)
	a.json(w, http.StatusOK, map[string]any{"session": sessionToDTO(sess)})
}

func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	rt, userID, ok := a.runtime(w, r)
	if !ok {
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, userProfileDTO{
		ID:      user.ID,
		Email:   user.Email,
		Name:    user.Name,
		Picture: user.Picture,
		Locale:  user.Locale,
		Balance: rt.Ledger.Balance(),
	})
}
