package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/grocery-delivery/internal/api/middleware"
	"github.com/example/grocery-delivery/internal/apperr"
	"github.com/example/grocery-delivery/internal/auth"
	"github.com/example/grocery-delivery/internal/domain/user"
)

// AuthHandlers serves registration and login.
type AuthHandlers struct {
	users *user.Service
	jwt   *auth.JWTService
	log   *slog.Logger
}

func NewAuthHandlers(users *user.Service, jwtService *auth.JWTService, log *slog.Logger) *AuthHandlers {
	return &AuthHandlers{users: users, jwt: jwtService, log: log}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.users.Register(r.Context(), req.Email, req.Password, user.Role(req.Role)); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondMessage(w, http.StatusCreated, "User created successfully")
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	token, expiresAt, err := h.jwt.GenerateAccessToken(u.ID, u.Email, string(u.Role))
	if err != nil {
		h.respondError(w, r, apperr.Internal(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	respondJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt})
}

// Logout clears the session cookie. Bearer tokens stay valid until expiry.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	respondMessage(w, http.StatusOK, "Logged out")
}

// Me returns the account behind the token.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), middleware.Caller(r.Context()).UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

// respondError differs from Handlers.respondError only in that bad
// credentials are a 401.
func (h *AuthHandlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, user.ErrInvalidCredentials) {
		respondMessage(w, http.StatusUnauthorized, user.ErrInvalidCredentials.Message)
		return
	}
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondMessage(w, status, apperr.Message(err))
}
