package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"hrportal/internal/domain/auth"
	"hrportal/internal/domain/session"
)

type ctxKey string

const ctxKeySession ctxKey = "session"

type SessionConfig struct {
	Authenticator auth.Authenticator
	CookieName    string
	CookieSecure  bool
	TTL           time.Duration
}

// Session restores a session.Store for every request from its bearer token or
// cookie and puts it in the request context.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokens := NewCookieTokens(w, r, cfg)
			store := session.New(cfg.Authenticator, tokens)
			store.Restore(r.Context())
			ctx := context.WithValue(r.Context(), ctxKeySession, store)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionFrom(ctx context.Context) (*session.Store, bool) {
	store, ok := ctx.Value(ctxKeySession).(*session.Store)
	return store, ok && store != nil
}

// CurrentState is the signed-out state when no session middleware ran.
func CurrentState(ctx context.Context) session.State {
	if store, ok := SessionFrom(ctx); ok {
		return store.State()
	}
	return session.State{}
}

func CurrentIdentity(ctx context.Context) (auth.Identity, bool) {
	state := CurrentState(ctx)
	if !state.Authenticated || state.Identity == nil {
		return auth.Identity{}, false
	}
	return *state.Identity, true
}

// CookieTokens is the per-request session.TokenStore. A bearer token takes
// precedence over the cookie; saving or clearing always writes the cookie.
type CookieTokens struct {
	w      http.ResponseWriter
	name   string
	secure bool
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

func NewCookieTokens(w http.ResponseWriter, r *http.Request, cfg SessionConfig) *CookieTokens {
	t := &CookieTokens{w: w, name: cfg.CookieName, secure: cfg.CookieSecure, ttl: cfg.TTL}
	if bearer := BearerToken(r); bearer != "" {
		t.token = bearer
	} else if cookie, err := r.Cookie(cfg.CookieName); err == nil {
		t.token = strings.TrimSpace(cookie.Value)
	}
	return t
}

func (t *CookieTokens) Load(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token, nil
}

func (t *CookieTokens) Save(_ context.Context, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
	cookie := t.cookie(token)
	if t.ttl > 0 {
		cookie.MaxAge = int(t.ttl.Seconds())
		cookie.Expires = time.Now().Add(t.ttl)
	}
	http.SetCookie(t.w, cookie)
	return nil
}

func (t *CookieTokens) Clear(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = ""
	cookie := t.cookie("")
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(t.w, cookie)
	return nil
}

func (t *CookieTokens) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     t.name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
