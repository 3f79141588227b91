package access

import (
	"net/url"
	"strings"

	"hrportal/internal/domain/session"
)

type Outcome int

const (
	Render Outcome = iota
	Loading
	RedirectLogin
	RedirectLanding
)

func (o Outcome) String() string {
	switch o {
	case Render:
		return "render"
	case Loading:
		return "loading"
	case RedirectLogin:
		return "redirect_login"
	case RedirectLanding:
		return "redirect_landing"
	default:
		return "unknown"
	}
}

// Decision is what a protected view should do. Location is set only for
// redirects.
type Decision struct {
	Outcome  Outcome
	Location string
}

func (d Decision) Renders() bool {
	return d.Outcome == Render
}

type Guard struct {
	LoginPath   string
	LandingPath string
}

func NewGuard(policy *Policy) Guard {
	return Guard{LoginPath: policy.LoginPath, LandingPath: policy.LandingPath}
}

// Evaluate is a pure function of the session snapshot and the rule. The
// checks run in a fixed order: loading, then authentication, then role.
func (g Guard) Evaluate(state session.State, rule RouteRule, requested string) Decision {
	if state.Loading {
		return Decision{Outcome: Loading}
	}
	if !state.Authenticated || state.Identity == nil {
		return Decision{Outcome: RedirectLogin, Location: g.LoginLocation(requested)}
	}
	if !rule.Allows(state.Role()) {
		return Decision{Outcome: RedirectLanding, Location: g.LandingPath}
	}
	return Decision{Outcome: Render}
}

// LoginLocation is the login entry point carrying the location to return to
// after a successful login.
func (g Guard) LoginLocation(requested string) string {
	target := SafeReturnPath(requested, "")
	if target == "" {
		return g.LoginPath
	}
	return g.LoginPath + "?redirect_uri=" + url.QueryEscape(target)
}

// ReturnPath picks where to send a user after login.
func (g Guard) ReturnPath(raw string) string {
	target := SafeReturnPath(raw, g.LandingPath)
	if target == g.LoginPath || strings.HasPrefix(target, g.LoginPath+"?") {
		return g.LandingPath
	}
	return target
}

// SafeReturnPath accepts only same-origin absolute paths. Anything else,
// including scheme-relative URLs, yields fallback.
func SafeReturnPath(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return fallback
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") || strings.ContainsAny(raw, "\r\n") {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}
	if u.RawQuery != "" {
		return u.EscapedPath() + "?" + u.RawQuery
	}
	return u.EscapedPath()
}
