package accesshandler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"hrportal/internal/domain/access"
	"hrportal/internal/domain/auth"
	"hrportal/internal/transport/http/api"
	"hrportal/internal/transport/http/middleware"
	"hrportal/internal/transport/http/shared"
)

type Handler struct {
	Policy *access.Policy
	Guard  access.Guard
	Now    func() time.Time
}

func NewHandler(policy *access.Policy) *Handler {
	return &Handler{Policy: policy, Guard: access.NewGuard(policy), Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/access", func(r chi.Router) {
		r.Get("/check", h.handleCheck)
		r.With(middleware.RequireRoles(auth.RoleAdmin)).Get("/matrix", h.handleMatrix)
		r.With(middleware.RequireRoles(auth.RoleAdmin)).Get("/matrix.pdf", h.handleMatrixPDF)
	})
}

type checkResponse struct {
	Path     string `json:"path"`
	Route    string `json:"route"`
	Outcome  string `json:"outcome"`
	Location string `json:"location,omitempty"`
}

// handleCheck answers what the guard would do for the caller on path without
// following it.
func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	target := strings.TrimSpace(r.URL.Query().Get("path"))

	v := shared.NewValidator()
	v.Required("path", target, "is required")
	v.MaxLen("path", target, 2048, "is too long")
	if target != "" && !strings.HasPrefix(target, "/") {
		v.Add("path", "must be an absolute path")
	}
	if v.Reject(w, reqID) {
		return
	}

	rule, ok := h.Policy.Match(target)
	if !ok {
		api.Fail(w, http.StatusNotFound, api.CodeNotFound, "no view registered for path", reqID)
		return
	}
	decision := h.Guard.Evaluate(middleware.CurrentState(r.Context()), rule, target)
	api.Success(w, checkResponse{
		Path:     target,
		Route:    rule.Path,
		Outcome:  decision.Outcome.String(),
		Location: decision.Location,
	}, reqID)
}

func (h *Handler) handleMatrix(w http.ResponseWriter, r *http.Request) {
	api.Success(w, h.Policy.Matrix(), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMatrixPDF(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=access-matrix.pdf")
	if err := access.WriteMatrixPDF(w, h.Policy.Matrix(), h.Now()); err != nil {
		slog.Error("access matrix pdf failed", "requestId", middleware.GetRequestID(r.Context()), "err", err)
	}
}
