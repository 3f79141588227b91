package middleware

import (
	"context"
	"net/http"
	"strings"

	"hrportal/internal/domain/access"
	"hrportal/internal/domain/audit"
	"hrportal/internal/platform/metrics"
	"hrportal/internal/transport/http/api"
)

const ctxKeyRoute ctxKey = "route"

type GuardConfig struct {
	Policy  *access.Policy
	Metrics *metrics.Collector
	Audit   audit.Recorder
}

// RouteGuard applies the access policy to view requests. Browsers are
// redirected with 303; API clients get 401 or 403 envelopes.
func RouteGuard(cfg GuardConfig) func(http.Handler) http.Handler {
	guard := access.NewGuard(cfg.Policy)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rule, ok := cfg.Policy.Match(r.URL.Path)
			if !ok {
				http.NotFound(w, r)
				return
			}
			state := CurrentState(r.Context())
			decision := guard.Evaluate(state, rule, r.URL.RequestURI())
			if cfg.Metrics != nil {
				cfg.Metrics.RecordGuard(decision.Outcome.String())
			}

			switch decision.Outcome {
			case access.Render:
				ctx := context.WithValue(r.Context(), ctxKeyRoute, rule)
				next.ServeHTTP(w, r.WithContext(ctx))
			case access.Loading:
				w.Header().Set("Retry-After", "1")
				if WantsJSON(r) {
					api.Fail(w, http.StatusServiceUnavailable, api.CodeLoading, "session is loading", GetRequestID(r.Context()))
					return
				}
				http.Error(w, "Loading…", http.StatusServiceUnavailable)
			case access.RedirectLogin:
				if WantsJSON(r) {
					api.Fail(w, http.StatusUnauthorized, api.CodeUnauthorized, "authentication required", GetRequestID(r.Context()))
					return
				}
				http.Redirect(w, r, decision.Location, http.StatusSeeOther)
			case access.RedirectLanding:
				actorID := ""
				if state.Identity != nil {
					actorID = state.Identity.ID
				}
				audit.Emit(r.Context(), cfg.Audit, audit.NewEvent(r.Context(), audit.ActionAccessDenied, actorID, rule.Path,
					map[string]string{"role": string(state.Role()), "requested": r.URL.Path}))
				if WantsJSON(r) {
					api.Fail(w, http.StatusForbidden, api.CodeForbidden, "insufficient role", GetRequestID(r.Context()))
					return
				}
				http.Redirect(w, r, decision.Location, http.StatusSeeOther)
			}
		})
	}
}

// RouteFrom returns the rule that admitted the request.
func RouteFrom(ctx context.Context) (access.RouteRule, bool) {
	rule, ok := ctx.Value(ctxKeyRoute).(access.RouteRule)
	return rule, ok
}

// WantsJSON reports whether the caller is an API client rather than a browser.
func WantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	accept := strings.ToLower(r.Header.Get("Accept"))
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
