package authhandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"hrportal/internal/domain/access"
	"hrportal/internal/domain/audit"
	"hrportal/internal/domain/auth"
	"hrportal/internal/domain/session"
	"hrportal/internal/platform/metrics"
	"hrportal/internal/transport/http/api"
	"hrportal/internal/transport/http/middleware"
	"hrportal/internal/transport/http/shared"
)

type Handler struct {
	Policy   *access.Policy
	Composer *access.Composer
	Audit    audit.Recorder
	Metrics  *metrics.Collector
}

func NewHandler(policy *access.Policy, recorder audit.Recorder, collector *metrics.Collector) *Handler {
	return &Handler{
		Policy:   policy,
		Composer: access.NewComposer(policy),
		Audit:    recorder,
		Metrics:  collector,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.HandleLogin)
		r.Post("/logout", h.HandleLogout)
		r.Get("/me", h.HandleMe)
	})
	r.Get("/shell", h.HandleShell)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode"`
}

type loginResponse struct {
	Token       string            `json:"token"`
	User        auth.Identity     `json:"user"`
	Navigation  []access.NavEntry `json:"navigation"`
	LandingPath string            `json:"landingPath"`
}

type shellResponse struct {
	Session     session.State     `json:"session"`
	Navigation  []access.NavEntry `json:"navigation"`
	LandingPath string            `json:"landingPath"`
	LoginPath   string            `json:"loginPath"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, api.CodeInvalidPayload, "invalid request payload", reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("email", payload.Email, "is required")
	v.Email("email", payload.Email, "must be a valid email address")
	v.Required("password", payload.Password, "is required")
	v.MaxLen("mfaCode", payload.MFACode, 10, "is too long")
	if v.Reject(w, reqID) {
		return
	}

	store, ok := middleware.SessionFrom(r.Context())
	if !ok {
		api.Fail(w, http.StatusInternalServerError, api.CodeInternal, "session unavailable", reqID)
		return
	}
	creds := auth.Credentials{Email: payload.Email, Password: payload.Password, MFACode: payload.MFACode}
	identity, err := store.Login(r.Context(), creds)
	if err != nil {
		h.recordFailure(r, payload.Email, err)
		status, code, message := LoginFailure(err)
		api.Fail(w, status, code, message, reqID)
		return
	}
	h.recordSuccess(r, identity)

	api.Success(w, loginResponse{
		Token:       store.Token(),
		User:        identity,
		Navigation:  h.Composer.Entries(identity.Role),
		LandingPath: h.Policy.LandingPath,
	}, reqID)
}

func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if store, ok := middleware.SessionFrom(r.Context()); ok {
		h.Logout(r, store)
	}
	api.Success(w, map[string]bool{"loggedOut": true}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.CurrentIdentity(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, api.CodeInvalidToken, "no valid session", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, identity, middleware.GetRequestID(r.Context()))
}

// HandleShell answers for signed-out callers too; their menu is the baseline.
func (h *Handler) HandleShell(w http.ResponseWriter, r *http.Request) {
	state := middleware.CurrentState(r.Context())
	api.Success(w, shellResponse{
		Session:     state,
		Navigation:  h.Composer.Entries(state.Role()),
		LandingPath: h.Policy.LandingPath,
		LoginPath:   h.Policy.LoginPath,
	}, middleware.GetRequestID(r.Context()))
}

// Logout ends the session on store and audits it when someone was signed in.
func (h *Handler) Logout(r *http.Request, store *session.Store) {
	before := store.State()
	store.Logout(r.Context())
	if before.Identity != nil {
		audit.Emit(r.Context(), h.Audit, audit.NewEvent(r.Context(), audit.ActionLogout, before.Identity.ID, before.Identity.Email, nil))
	}
}

// RecordLogin feeds metrics and audit for a login attempt made elsewhere.
func (h *Handler) RecordLogin(r *http.Request, email string, identity auth.Identity, err error) {
	if err != nil {
		h.recordFailure(r, email, err)
		return
	}
	h.recordSuccess(r, identity)
}

func (h *Handler) recordSuccess(r *http.Request, identity auth.Identity) {
	if h.Metrics != nil {
		h.Metrics.RecordLogin(true)
	}
	audit.Emit(r.Context(), h.Audit, audit.NewEvent(r.Context(), audit.ActionLogin, identity.ID, identity.Email,
		map[string]string{"role": string(identity.Role)}))
}

func (h *Handler) recordFailure(r *http.Request, email string, err error) {
	if errors.Is(err, session.ErrSuperseded) {
		return
	}
	if h.Metrics != nil {
		h.Metrics.RecordLogin(false)
	}
	_, code, _ := LoginFailure(err)
	if code == api.CodeInternal {
		slog.Error("login failed", "requestId", middleware.GetRequestID(r.Context()), "err", err)
	}
	audit.Emit(r.Context(), h.Audit, audit.NewEvent(r.Context(), audit.ActionLoginFailed, "", auth.NormalizeEmail(email),
		map[string]string{"reason": code}))
}

// LoginFailure maps a login error to its HTTP status and envelope code.
func LoginFailure(err error) (int, string, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, api.CodeInvalidCredentials, "invalid credentials"
	case errors.Is(err, auth.ErrMFARequired):
		return http.StatusUnauthorized, api.CodeMFARequired, "multi-factor code required"
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict, api.CodeSuperseded, "login superseded by a newer request"
	default:
		return http.StatusInternalServerError, api.CodeInternal, "login failed"
	}
}
