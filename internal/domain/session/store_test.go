package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"hrportal/internal/domain/auth"
	"hrportal/internal/mocks"
)

var adminIdentity = auth.Identity{ID: "1", Name: "Admin User", Role: auth.RoleAdmin, Email: "admin@company.com"}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) listen(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestLoginStoresIdentityAndToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)
	creds := auth.Credentials{Email: "admin@company.com", Password: "admin123"}
	authn.EXPECT().Authenticate(gomock.Any(), creds).Return(adminIdentity, "tok-1", nil)

	tokens := NewMemoryTokens("")
	store := New(authn, tokens)
	rec := &recorder{}
	store.Subscribe(rec.listen)

	identity, err := store.Login(context.Background(), creds)
	require.NoError(t, err)
	assert.Equal(t, adminIdentity, identity)

	state := store.State()
	assert.True(t, state.Authenticated)
	assert.False(t, state.Loading)
	require.NotNil(t, state.Identity)
	assert.Equal(t, auth.RoleAdmin, state.Role())
	assert.Equal(t, "tok-1", store.Token())

	saved, _ := tokens.Load(context.Background())
	assert.Equal(t, "tok-1", saved)

	states := rec.all()
	require.Len(t, states, 2)
	assert.True(t, states[0].Loading)
	assert.False(t, states[0].Authenticated)
	assert.True(t, states[1].Authenticated)
	assert.False(t, states[1].Loading)
}

func TestLoginInvalidCredentialsLeavesStateUnchanged(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)
	authn.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(auth.Identity{}, "", auth.ErrInvalidCredentials)

	tokens := NewMemoryTokens("")
	store := New(authn, tokens)

	_, err := store.Login(context.Background(), auth.Credentials{Email: "employee@company.com", Password: "wrong"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, State{}, store.State())

	saved, _ := tokens.Load(context.Background())
	assert.Empty(t, saved)
}

func TestFailedReloginKeepsExistingIdentity(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)
	gomock.InOrder(
		authn.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(adminIdentity, "tok-1", nil),
		authn.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(auth.Identity{}, "", auth.ErrInvalidCredentials),
	)

	store := New(authn, nil)
	_, err := store.Login(context.Background(), auth.Credentials{Email: "admin@company.com", Password: "admin123"})
	require.NoError(t, err)

	_, err = store.Login(context.Background(), auth.Credentials{Email: "admin@company.com", Password: "nope"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	state := store.State()
	assert.True(t, state.Authenticated)
	assert.False(t, state.Loading)
	assert.Equal(t, "tok-1", store.Token())
}

func TestLogoutIsIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)
	authn.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(adminIdentity, "tok-1", nil)
	authn.EXPECT().Revoke(gomock.Any(), "tok-1").Return(nil).Times(1)

	tokens := NewMemoryTokens("")
	store := New(authn, tokens)
	_, err := store.Login(context.Background(), auth.Credentials{})
	require.NoError(t, err)

	store.Logout(context.Background())
	store.Logout(context.Background())

	assert.Equal(t, State{}, store.State())
	assert.Empty(t, store.Token())
	saved, _ := tokens.Load(context.Background())
	assert.Empty(t, saved)
}

func TestLogoutSwallowsRevokeErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)
	authn.EXPECT().Resolve(gomock.Any(), "tok-1").Return(adminIdentity, nil)
	authn.EXPECT().Revoke(gomock.Any(), "tok-1").Return(assert.AnError)

	store := New(authn, NewMemoryTokens("tok-1"))
	store.Restore(context.Background())
	store.Logout(context.Background())

	assert.False(t, store.State().Authenticated)
}

func TestRestoreWithValidToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)
	authn.EXPECT().Resolve(gomock.Any(), "tok-1").Return(adminIdentity, nil)

	store := New(authn, NewMemoryTokens("tok-1"))
	rec := &recorder{}
	store.Subscribe(rec.listen)

	state := store.Restore(context.Background())
	assert.True(t, state.Authenticated)
	assert.False(t, state.Loading)
	assert.Equal(t, "admin@company.com", state.Identity.Email)

	states := rec.all()
	require.Len(t, states, 2)
	assert.True(t, states[0].Loading)
	assert.False(t, states[1].Loading)
}

func TestRestoreWithUnknownTokenClearsPriorSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)
	authn.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(adminIdentity, "tok-1", nil)
	authn.EXPECT().Resolve(gomock.Any(), "tok-unknown").Return(auth.Identity{}, auth.ErrInvalidToken)

	tokens := NewMemoryTokens("")
	store := New(authn, tokens)
	_, err := store.Login(context.Background(), auth.Credentials{})
	require.NoError(t, err)

	require.NoError(t, tokens.Save(context.Background(), "tok-unknown"))
	state := store.Restore(context.Background())

	assert.False(t, state.Authenticated)
	assert.False(t, state.Loading)
	assert.Nil(t, state.Identity)
	saved, _ := tokens.Load(context.Background())
	assert.Empty(t, saved)
}

func TestRestoreWithoutTokenSkipsAuthenticator(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)

	store := New(authn, NewMemoryTokens(""))
	state := store.Restore(context.Background())
	assert.Equal(t, State{}, state)
}

func TestRestoreTreatsCollaboratorFailureAsSignedOut(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)
	authn.EXPECT().Resolve(gomock.Any(), "tok-1").Return(auth.Identity{}, assert.AnError)

	store := New(authn, NewMemoryTokens("tok-1"))
	state := store.Restore(context.Background())
	assert.False(t, state.Authenticated)
	assert.False(t, state.Loading)
}

func TestStaleLoginAfterLogoutIsDiscarded(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	authn.EXPECT().Authenticate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, auth.Credentials) (auth.Identity, string, error) {
			close(started)
			<-release
			return adminIdentity, "tok-late", nil
		})
	authn.EXPECT().Revoke(gomock.Any(), "tok-late").Return(nil)

	tokens := NewMemoryTokens("")
	store := New(authn, tokens)

	done := make(chan error, 1)
	go func() {
		_, err := store.Login(context.Background(), auth.Credentials{Email: "admin@company.com"})
		done <- err
	}()

	<-started
	assert.True(t, store.State().Loading)

	store.Logout(context.Background())
	assert.Equal(t, State{}, store.State())

	close(release)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("login did not return")
	}

	assert.Equal(t, State{}, store.State())
	saved, _ := tokens.Load(context.Background())
	assert.Empty(t, saved)
}

func TestReloginRevokesReplacedToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)
	employee := auth.Identity{ID: "4", Role: auth.RoleEmployee, Email: "employee@company.com"}
	gomock.InOrder(
		authn.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(adminIdentity, "tok-1", nil),
		authn.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(employee, "tok-2", nil),
		authn.EXPECT().Revoke(gomock.Any(), "tok-1").Return(nil).Times(1),
	)

	tokens := NewMemoryTokens("")
	store := New(authn, tokens)
	_, err := store.Login(context.Background(), auth.Credentials{Email: "admin@company.com"})
	require.NoError(t, err)
	_, err = store.Login(context.Background(), auth.Credentials{Email: "employee@company.com"})
	require.NoError(t, err)

	assert.Equal(t, "tok-2", store.Token())
	assert.Equal(t, auth.RoleEmployee, store.State().Role())
	saved, _ := tokens.Load(context.Background())
	assert.Equal(t, "tok-2", saved)
}

func TestReloginAgainstDirectoryInvalidatesOldToken(t *testing.T) {
	accounts, err := auth.BuildAccounts(auth.DemoAccounts)
	require.NoError(t, err)
	svc := auth.NewService(auth.ServiceOptions{
		Directory: auth.NewMemoryDirectory(accounts...),
		Sessions:  auth.NewMemoryRegistry(),
		Secret:    "relogin-secret",
	})
	store := New(svc, nil)

	_, err = store.Login(context.Background(), auth.Credentials{Email: "hr@company.com", Password: "hr123"})
	require.NoError(t, err)
	first := store.Token()

	_, err = store.Login(context.Background(), auth.Credentials{Email: "admin@company.com", Password: "admin123"})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), first)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	_, err = svc.Resolve(context.Background(), store.Token())
	assert.NoError(t, err)
}

func TestNewerLoginWins(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)

	employee := auth.Identity{ID: "4", Role: auth.RoleEmployee, Email: "employee@company.com"}
	started := make(chan struct{})
	release := make(chan struct{})
	authn.EXPECT().Authenticate(gomock.Any(), auth.Credentials{Email: "slow"}).DoAndReturn(
		func(context.Context, auth.Credentials) (auth.Identity, string, error) {
			close(started)
			<-release
			return adminIdentity, "tok-slow", nil
		})
	authn.EXPECT().Authenticate(gomock.Any(), auth.Credentials{Email: "fast"}).Return(employee, "tok-fast", nil)
	authn.EXPECT().Revoke(gomock.Any(), "tok-slow").Return(nil)

	store := New(authn, nil)
	done := make(chan error, 1)
	go func() {
		_, err := store.Login(context.Background(), auth.Credentials{Email: "slow"})
		done <- err
	}()
	<-started

	_, err := store.Login(context.Background(), auth.Credentials{Email: "fast"})
	require.NoError(t, err)

	close(release)
	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, auth.RoleEmployee, store.State().Role())
	assert.Equal(t, "tok-fast", store.Token())
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)

	store := New(authn, nil)
	rec := &recorder{}
	unsubscribe := store.Subscribe(rec.listen)
	store.Restore(context.Background())
	unsubscribe()
	store.Restore(context.Background())

	assert.Len(t, rec.all(), 1)
}

func TestSnapshotsAreIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	authn := mocks.NewMockAuthenticator(ctrl)
	authn.EXPECT().Resolve(gomock.Any(), "tok-1").Return(adminIdentity, nil)

	store := New(authn, NewMemoryTokens("tok-1"))
	state := store.Restore(context.Background())
	state.Identity.Role = auth.RoleEmployee

	assert.Equal(t, auth.RoleAdmin, store.State().Role())
}

func TestLoginScenarioAgainstDemoDirectory(t *testing.T) {
	accounts, err := auth.BuildAccounts(auth.DemoAccounts)
	require.NoError(t, err)
	svc := auth.NewService(auth.ServiceOptions{
		Directory: auth.NewMemoryDirectory(accounts...),
		Sessions:  auth.NewMemoryRegistry(),
		Secret:    "test-secret",
	})

	tokens := NewMemoryTokens("")
	store := New(svc, tokens)

	_, err = store.Login(context.Background(), auth.Credentials{Email: "employee@company.com", Password: "wrong"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.False(t, store.State().Authenticated)

	identity, err := store.Login(context.Background(), auth.Credentials{Email: "admin@company.com", Password: "admin123"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, identity.Role)

	restarted := New(svc, tokens)
	state := restarted.Restore(context.Background())
	assert.True(t, state.Authenticated)
	assert.Equal(t, auth.RoleAdmin, state.Role())

	restarted.Logout(context.Background())
	again := New(svc, NewMemoryTokens(store.Token()))
	assert.False(t, again.Restore(context.Background()).Authenticated)
}
