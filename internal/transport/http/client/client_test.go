package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrportal/internal/domain/access"
	"hrportal/internal/domain/auth"
	"hrportal/internal/domain/session"
	authhandler "hrportal/internal/transport/http/handlers/auth"
	"hrportal/internal/transport/http/middleware"
)

func server(t *testing.T) *httptest.Server {
	t.Helper()
	accounts, err := auth.BuildAccounts(auth.DemoAccounts)
	require.NoError(t, err)
	svc := auth.NewService(auth.ServiceOptions{
		Directory: auth.NewMemoryDirectory(accounts...),
		Sessions:  auth.NewMemoryRegistry(),
		Secret:    "client-secret",
		TTL:       time.Hour,
	})
	r := chi.NewRouter()
	r.Use(middleware.Session(middleware.SessionConfig{Authenticator: svc, CookieName: "hrportal_session", TTL: time.Hour}))
	r.Route("/api/v1", authhandler.NewHandler(access.MustDefault(), nil, nil).RegisterRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthenticatorRoundTrip(t *testing.T) {
	srv := server(t)
	c := New(srv.URL+"/", srv.Client())
	ctx := context.Background()

	identity, token, err := c.Authenticate(ctx, auth.Credentials{Email: "training@company.com", Password: "training123"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleTrainingManager, identity.Role)
	require.NotEmpty(t, token)

	resolved, err := c.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, identity, resolved)

	nav, err := c.Shell(ctx, token)
	require.NoError(t, err)
	require.NotEmpty(t, nav)
	assert.Equal(t, "/dashboard", nav[0].Path)

	require.NoError(t, c.Revoke(ctx, token))
	_, err = c.Resolve(ctx, token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestAuthenticatorMapsErrors(t *testing.T) {
	srv := server(t)
	c := New(srv.URL, srv.Client())
	ctx := context.Background()

	_, _, err := c.Authenticate(ctx, auth.Credentials{Email: "admin@company.com", Password: "wrong"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = c.Resolve(ctx, "garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestAuthenticatorRejectsNonEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, srv.Client()).Resolve(context.Background(), "t")
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

// A session.Store driven through the client behaves like one driven in-process.
func TestSessionStoreOverClient(t *testing.T) {
	srv := server(t)
	c := New(srv.URL, srv.Client())
	tokens := session.NewMemoryTokens("")
	store := session.New(c, tokens)
	ctx := context.Background()

	_, err := store.Login(ctx, auth.Credentials{Email: "employee@company.com", Password: "nope"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.False(t, store.State().Authenticated)

	_, err = store.Login(ctx, auth.Credentials{Email: "employee@company.com", Password: "employee123"})
	require.NoError(t, err)
	saved, _ := tokens.Load(ctx)

	fresh := session.New(c, session.NewMemoryTokens(saved))
	state := fresh.Restore(ctx)
	assert.True(t, state.Authenticated)
	assert.Equal(t, auth.RoleEmployee, state.Role())

	fresh.Logout(ctx)
	state = session.New(c, session.NewMemoryTokens(saved)).Restore(ctx)
	assert.False(t, state.Authenticated)
	assert.False(t, state.Loading)
}
