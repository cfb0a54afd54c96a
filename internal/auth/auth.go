package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/logger"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/services"
)

const (
	sessionName = "reconectar-session"
	userIDKey   = "user_id"
)

// Session is the identity resolved for one request.
type Session struct {
	UserID string
	Roles  models.RoleSet
}

// Authenticated reports whether the request carries a signed-in user.
func (s Session) Authenticated() bool {
	return s.UserID != ""
}

type ctxKey struct{}

// WithSession returns a copy of ctx that carries s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// SessionFromContext returns the session stored by Middleware, or the zero
// Session for anonymous requests.
func SessionFromContext(ctx context.Context) Session {
	s, _ := ctx.Value(ctxKey{}).(Session)
	return s
}

func SessionFromRequest(r *http.Request) Session {
	return SessionFromContext(r.Context())
}

type Options struct {
	Secret     string
	Secure     bool
	MaxAgeDays int
}

// Manager owns the cookie store and the account endpoints.
type Manager struct {
	store *sessions.CookieStore
	users *services.UserService
	roles *services.RoleService
}

func NewManager(opts Options, users *services.UserService, roles *services.RoleService) *Manager {
	store := sessions.NewCookieStore([]byte(opts.Secret))
	maxAge := opts.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 30
	}
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{store: store, users: users, roles: roles}
}

// RegisterHandler creates an account and signs it in.
func (m *Manager) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("auth.Register", "invalid request body"))
		return
	}

	user, err := m.users.CreateUser(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := m.signIn(w, r, user.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": user})
}

func (m *Manager) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("auth.Login", "invalid request body"))
		return
	}

	user, err := m.users.AuthenticateUser(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := m.signIn(w, r, user.ID); err != nil {
		writeError(w, err)
		return
	}

	roles, err := m.roles.Roles(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user, "roles": roles})
}

func (m *Manager) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := m.store.Get(r, sessionName)
	delete(session.Values, userIDKey)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		writeError(w, apperr.Backend("auth.Logout", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *Manager) signIn(w http.ResponseWriter, r *http.Request, userID string) error {
	// a cookie signed with a rotated secret fails to decode; start fresh
	session, _ := m.store.Get(r, sessionName)
	session.Values[userIDKey] = userID
	if err := session.Save(r, w); err != nil {
		return apperr.Backend("auth.SignIn", err)
	}
	return nil
}

// Middleware resolves the session cookie into a Session on the request
// context. Anonymous requests pass through with the zero Session.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := m.store.Get(r, sessionName)
		if err != nil {
			logger.New().WithError(err).Debug("Ignoring undecodable session cookie")
		}

		userID, _ := session.Values[userIDKey].(string)
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		if _, err := m.users.GetUserByID(r.Context(), userID); err != nil {
			if apperr.KindOf(err) != apperr.KindNotFound {
				writeError(w, err)
				return
			}
			// account was removed; treat as signed out
			next.ServeHTTP(w, r)
			return
		}

		roles, err := m.roles.Roles(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := WithSession(r.Context(), Session{UserID: userID, Roles: roles})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require rejects anonymous requests with 401.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !SessionFromRequest(r).Authenticated() {
			writeError(w, apperr.Unauthenticated("auth.Require"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MeHandler returns the signed-in identity.
func (m *Manager) MeHandler(w http.ResponseWriter, r *http.Request) {
	s := SessionFromRequest(r)
	user, err := m.users.GetUserByID(r.Context(), s.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user, "roles": s.Roles})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError renders err as {"error": {"kind", "message"}} with the status of its kind.
func WriteError(w http.ResponseWriter, err error) {
	writeError(w, err)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.New().WithError(err).Error("Request failed")
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"kind":    string(apperr.KindOf(err)),
			"message": apperr.MessageOf(err),
		},
	})
}
