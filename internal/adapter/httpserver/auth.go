package httpserver

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/config"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-mock-interviewer/internal/observability"
)

// SessionCookieName is the cookie carrying the signed session.
const SessionCookieName = "session"

// SessionTTL is how long a login stays valid.
const SessionTTL = 24 * time.Hour

// SessionData is the signed content of a session cookie.
type SessionData struct {
	UserID    string `json:"uid"`
	Username  string `json:"usr"`
	Role      string `json:"role"`
	LoginTime int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// SessionManager issues and verifies HMAC-signed session cookies.
type SessionManager struct {
	secret   []byte
	secure   bool
	sameSite http.SameSite
	now      func() time.Time
}

// NewSessionManager creates a session manager from config. Without
// SESSION_SECRET a random per-process key is used, so sessions do not survive
// a restart.
func NewSessionManager(cfg config.Config) *SessionManager {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	return &SessionManager{
		secret:   secret,
		secure:   !cfg.IsDev() && !cfg.IsTest(),
		sameSite: parseSameSite(cfg.SessionSameSite),
		now:      time.Now,
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// CreateSession returns a signed cookie value for the user.
func (sm *SessionManager) CreateSession(u domain.User) (string, error) {
	now := sm.now()
	payload, err := json.Marshal(SessionData{
		UserID:    u.ID,
		Username:  u.Username,
		Role:      u.CurrentRole,
		LoginTime: now.Unix(),
		ExpiresAt: now.Add(SessionTTL).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("op=session.create: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + sm.sign(body), nil
}

// ValidateSession verifies the signature and expiry of a cookie value.
func (sm *SessionManager) ValidateSession(value string) (*SessionData, error) {
	body, sig, ok := strings.Cut(value, ".")
	if !ok || body == "" || sig == "" {
		return nil, errors.New("invalid session format")
	}
	want, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return nil, errors.New("invalid signature encoding")
	}
	if !hmac.Equal(want, sm.mac(body)) {
		return nil, errors.New("invalid session signature")
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, errors.New("invalid payload encoding")
	}
	var sd SessionData
	if err := json.Unmarshal(raw, &sd); err != nil || sd.UserID == "" {
		return nil, errors.New("invalid payload format")
	}
	if sm.now().Unix() >= sd.ExpiresAt {
		return nil, errors.New("session expired")
	}
	return &sd, nil
}

func (sm *SessionManager) mac(body string) []byte {
	m := hmac.New(sha256.New, sm.secret)
	m.Write([]byte(body))
	return m.Sum(nil)
}

func (sm *SessionManager) sign(body string) string {
	return base64.RawURLEncoding.EncodeToString(sm.mac(body))
}

// SetSessionCookie writes the session cookie.
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: sm.sameSite,
		MaxAge:   int(SessionTTL.Seconds()),
	})
}

// ClearSessionCookie expires the session cookie.
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: sm.sameSite,
		MaxAge:   -1,
	})
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) (*SessionData, bool) {
	sd, ok := ctx.Value(sessionKey{}).(*SessionData)
	return sd, ok && sd != nil
}

// LoadSession attaches a valid session, if any, to the request context.
// A bad cookie is cleared and the request continues anonymously.
func (sm *SessionManager) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(SessionCookieName)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		sd, err := sm.ValidateSession(c.Value)
		if err != nil {
			LoggerFrom(r).Debug("dropping session cookie", slog.String("reason", err.Error()))
			sm.ClearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, sd)
		ctx = obsctx.ContextWithUserID(ctx, sd.UserID)
		ctx = obsctx.ContextWithLogger(ctx, LoggerFrom(r).With(slog.String("user_id", sd.UserID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession rejects requests without a valid session.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := sessionFrom(r.Context()); !ok {
			writeError(w, r, fmt.Errorf("%w: login required", domain.ErrUnauthorized), nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Role     string `json:"role" validate:"omitempty,oneof='Data Scientist' 'ML Engineer' 'Data Analyst'"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

// RegisterHandler creates an account.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		u, err := s.Auth.Register(r.Context(), req.Username, req.Password, req.Role)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Info("user registered", slog.String("user_id", u.ID))
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "User created successfully",
			"user_id": u.ID,
			"role":    u.CurrentRole,
		})
	}
}

// LoginHandler checks credentials and sets the session cookie.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		u, err := s.Auth.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		value, err := s.Sessions.CreateSession(u)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		s.Sessions.SetSessionCookie(w, value)
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Login successful",
			"user_id": u.ID,
			"role":    u.CurrentRole,
		})
	}
}

// LogoutHandler clears the session cookie.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.Sessions.ClearSessionCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// MeHandler returns the logged-in user.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sd, _ := sessionFrom(r.Context())
		u, err := s.Auth.Lookup(r.Context(), sd.Username)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":    u.ID,
			"username":   u.Username,
			"role":       u.CurrentRole,
			"has_resume": u.ResumeText != "",
		})
	}
}

// identity resolves the acting user. A session wins over the claimed id and
// must agree with it when both are present.
func (s *Server) identity(r *http.Request, claimed string) (userID, username string, err error) {
	claimed = strings.TrimSpace(claimed)
	if sd, ok := sessionFrom(r.Context()); ok {
		if claimed != "" && claimed != sd.UserID {
			return "", "", fmt.Errorf("%w: user_id does not match session", domain.ErrForbidden)
		}
		return sd.UserID, sd.Username, nil
	}
	if s.Cfg.AuthRequired {
		return "", "", fmt.Errorf("%w: login required", domain.ErrUnauthorized)
	}
	if claimed == "" {
		return "", "", fmt.Errorf("%w: user_id required", domain.ErrInvalidArgument)
	}
	return claimed, "", nil
}
