// Package views serves the browser side of the portal: the login form and
// the guarded application shell.
package views

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"hrportal/internal/domain/access"
	"hrportal/internal/domain/auth"
	"hrportal/internal/transport/http/api"
	authhandler "hrportal/internal/transport/http/handlers/auth"
	"hrportal/internal/transport/http/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	loginPage = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/login.html"))
	shellPage = template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/shell.html"))
)

type Handler struct {
	Policy   *access.Policy
	Guard    access.Guard
	Composer *access.Composer
	Auth     *authhandler.Handler
	Protect  func(http.Handler) http.Handler
}

// NewHandler wires the views; protect is the route guard applied to every
// application view.
func NewHandler(policy *access.Policy, authHandler *authhandler.Handler, protect func(http.Handler) http.Handler) *Handler {
	return &Handler{
		Policy:   policy,
		Guard:    access.NewGuard(policy),
		Composer: access.NewComposer(policy),
		Auth:     authHandler,
		Protect:  protect,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleRoot)
	r.Get(h.Policy.LoginPath, h.handleLoginForm)
	r.Post(h.Policy.LoginPath, h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.With(h.Protect).Get("/*", h.handleView)
}

type pageData struct {
	Title       string
	Path        string
	Active      string
	User        *auth.Identity
	Navigation  []access.NavEntry
	Error       string
	Email       string
	RedirectURI string
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.CurrentIdentity(r.Context()); ok {
		http.Redirect(w, r, h.Policy.LandingPath, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.Policy.LoginPath, http.StatusSeeOther)
}

func (h *Handler) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	redirect := r.URL.Query().Get("redirect_uri")
	if _, ok := middleware.CurrentIdentity(r.Context()); ok {
		http.Redirect(w, r, h.Guard.ReturnPath(redirect), http.StatusSeeOther)
		return
	}
	h.renderLogin(w, http.StatusOK, pageData{RedirectURI: access.SafeReturnPath(redirect, "")})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLogin(w, http.StatusBadRequest, pageData{Error: "The form could not be read."})
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	redirect := access.SafeReturnPath(r.PostForm.Get("redirect_uri"), "")
	data := pageData{Email: email, RedirectURI: redirect}
	if email == "" || r.PostForm.Get("password") == "" {
		data.Error = "Email and password are required."
		h.renderLogin(w, http.StatusBadRequest, data)
		return
	}

	store, ok := middleware.SessionFrom(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	identity, err := store.Login(r.Context(), auth.Credentials{
		Email:    email,
		Password: r.PostForm.Get("password"),
		MFACode:  strings.TrimSpace(r.PostForm.Get("mfa_code")),
	})
	h.Auth.RecordLogin(r, email, identity, err)
	if err != nil {
		status, _, _ := authhandler.LoginFailure(err)
		data.Error = loginMessage(err)
		h.renderLogin(w, status, data)
		return
	}
	http.Redirect(w, r, h.Guard.ReturnPath(redirect), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if store, ok := middleware.SessionFrom(r.Context()); ok {
		h.Auth.Logout(r, store)
	}
	http.Redirect(w, r, h.Policy.LoginPath, http.StatusSeeOther)
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	rule, ok := middleware.RouteFrom(r.Context())
	if !ok {
		http.NotFound(w, r)
		return
	}
	identity, _ := middleware.CurrentIdentity(r.Context())
	render(w, shellPage, http.StatusOK, pageData{
		Title:      rule.Title,
		Path:       r.URL.Path,
		Active:     rule.Path,
		User:       &identity,
		Navigation: h.Composer.Entries(identity.Role),
	})
}

func (h *Handler) renderLogin(w http.ResponseWriter, status int, data pageData) {
	data.Title = "Sign in"
	render(w, loginPage, status, data)
}

func loginMessage(err error) string {
	_, code, _ := authhandler.LoginFailure(err)
	switch code {
	case api.CodeInvalidCredentials:
		return "Invalid email or password."
	case api.CodeMFARequired:
		return "Enter the code from your authenticator app."
	case api.CodeSuperseded:
		return "Another sign-in is in progress. Try again."
	default:
		return "Sign-in is unavailable right now."
	}
}

func render(w http.ResponseWriter, tmpl *template.Template, status int, data pageData) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("render page failed", "title", data.Title, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
