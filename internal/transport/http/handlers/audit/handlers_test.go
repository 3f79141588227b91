package audithandler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrportal/internal/domain/audit"
	"hrportal/internal/domain/auth"
	"hrportal/internal/transport/http/middleware"
)

type fakeLister struct {
	events  []audit.Event
	err     error
	filters []audit.Filter
	limit   int
	offset  int
}

func (f *fakeLister) Count(_ context.Context, filter audit.Filter) (int, error) {
	f.filters = append(f.filters, filter)
	return len(f.events), f.err
}

func (f *fakeLister) List(_ context.Context, filter audit.Filter, limit, offset int) ([]audit.Event, error) {
	f.filters = append(f.filters, filter)
	f.limit, f.offset = limit, offset
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func router(t *testing.T, lister Lister) (http.Handler, map[string]string) {
	t.Helper()
	accounts, err := auth.BuildAccounts(auth.DemoAccounts)
	require.NoError(t, err)
	svc := auth.NewService(auth.ServiceOptions{
		Directory: auth.NewMemoryDirectory(accounts...),
		Sessions:  auth.NewMemoryRegistry(),
		Secret:    "audit-secret",
		TTL:       time.Hour,
	})
	tokens := map[string]string{}
	for _, creds := range []auth.Credentials{
		{Email: "admin@company.com", Password: "admin123"},
		{Email: "hr@company.com", Password: "hr123"},
	} {
		identity, token, err := svc.Authenticate(context.Background(), creds)
		require.NoError(t, err)
		tokens[string(identity.Role)] = token
	}

	r := chi.NewRouter()
	r.Use(middleware.Session(middleware.SessionConfig{Authenticator: svc, CookieName: "hrportal_session", TTL: time.Hour}))
	r.Route("/api/v1", NewHandler(lister).RegisterRoutes)
	return r, tokens
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListEventsRequiresAdmin(t *testing.T) {
	h, tokens := router(t, &fakeLister{})

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/v1/audit/events", "").Code)
	assert.Equal(t, http.StatusForbidden, get(h, "/api/v1/audit/events", tokens[string(auth.RoleHRManager)]).Code)
}

func TestListEventsPaginatesAndFilters(t *testing.T) {
	lister := &fakeLister{events: []audit.Event{
		{ID: "1", Action: audit.ActionAccessDenied, ActorID: "4", Subject: "/settings"},
	}}
	h, tokens := router(t, lister)

	rec := get(h, "/api/v1/audit/events?action=access.denied&actorId=4&limit=10&offset=20", tokens[string(auth.RoleAdmin)])
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Total-Count"))
	assert.Equal(t, 10, lister.limit)
	assert.Equal(t, 20, lister.offset)
	assert.Equal(t, audit.Filter{Action: audit.ActionAccessDenied, ActorID: "4"}, lister.filters[0])

	var env struct {
		Data []audit.Event `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Len(t, env.Data, 1)
	assert.Equal(t, "/settings", env.Data[0].Subject)
}

func TestListEventsFailure(t *testing.T) {
	h, tokens := router(t, &fakeLister{err: errors.New("db down")})
	rec := get(h, "/api/v1/audit/events", tokens[string(auth.RoleAdmin)])
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestExportEventsCSV(t *testing.T) {
	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	h, tokens := router(t, &fakeLister{events: []audit.Event{
		{ID: "9", ActorID: "1", Action: audit.ActionLogin, Subject: "admin@company.com", CreatedAt: created},
	}})

	rec := get(h, "/api/v1/audit/events/export", tokens[string(auth.RoleAdmin)])
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "actor_id", rows[0][1])
	assert.Equal(t, []string{"9", "1", audit.ActionLogin, "admin@company.com", "", "", "2026-03-04T05:06:07Z"}, rows[1])
}
