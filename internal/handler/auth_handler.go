package handler

import (
	"log/slog"
	"net/http"

	"workbridge/internal/auth"
	"workbridge/internal/middleware"
	"workbridge/internal/model"
	"workbridge/internal/service"
	"workbridge/pkg/apierror"
)

type AuthHandler struct {
	service  *service.AuthService
	sessions *auth.Sessions
	cookie   auth.CookieConfig
}

func NewAuthHandler(service *service.AuthService, sessions *auth.Sessions, cookie auth.CookieConfig) *AuthHandler {
	return &AuthHandler{service: service, sessions: sessions, cookie: cookie}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.service.Register(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookie.Set(w, session.Token, session.ExpiresAt)
	writeSuccess(w, http.StatusCreated, session, nil)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.service.Login(r.Context(), payload)
	if err != nil {
		if apierror.HasCode(err, "ACCOUNT_LOCKED") {
			slog.Warn("login refused for locked account", "client_ip", clientIP(r))
		}
		writeError(w, err)
		return
	}

	h.cookie.Set(w, session.Token, session.ExpiresAt)
	writeSuccess(w, http.StatusOK, session, nil)
}

// Logout clears the cookie. Tokens are stateless, so a copied token stays
// valid until it expires.
func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.cookie.Clear(w)
	writeSuccess(w, http.StatusOK, map[string]any{"logged_out": true}, nil)
}

// Me answers with the caller as currently stored, so role changes and
// deletions take effect before the token expires.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := h.sessions.CurrentUserFresh(r.Context())
	if decision := auth.Authorize(claims); !decision.Allowed() {
		middleware.WriteDecision(w, decision)
		return
	}

	writeSuccess(w, http.StatusOK, claims, nil)
}

// Session answers with the claims embedded in the cookie.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := h.sessions.CurrentUser(r.Context())
	if decision := auth.Authorize(claims); !decision.Allowed() {
		middleware.WriteDecision(w, decision)
		return
	}

	writeSuccess(w, http.StatusOK, claims, nil)
}
