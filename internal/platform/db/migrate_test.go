package db

import (
	"context"
	"os"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrportal/internal/domain/auth"
)

func TestMigrationFilesAreOrdered(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_b.sql": {Data: []byte("SELECT 2")},
		"m/0001_a.sql": {Data: []byte("SELECT 1")},
		"m/README.md":  {Data: []byte("docs")},
		"m/sub/x.sql":  {Data: []byte("SELECT 3")},
	}
	files, err := migrationFiles(fsys, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.sql", "0002_b.sql"}, files)
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := migrationFiles(Migrations, "migrations")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_users.sql", "0002_sessions.sql", "0003_audit_events.sql"}, files)
}

type fakeWriter struct {
	accounts []auth.Account
}

func (f *fakeWriter) EnsureAccount(_ context.Context, account auth.Account) error {
	f.accounts = append(f.accounts, account)
	return nil
}

func TestSeedAccountsWritesEveryAccount(t *testing.T) {
	accounts, err := auth.BuildAccounts(auth.DemoAccounts[:2])
	require.NoError(t, err)
	w := &fakeWriter{}
	require.NoError(t, SeedAccounts(context.Background(), w, accounts))
	require.Len(t, w.accounts, 2)
	assert.Equal(t, "admin@company.com", w.accounts[0].Email)
	assert.NoError(t, auth.CheckPassword(w.accounts[0].PasswordHash, "admin123"))
}

func TestMigrateAndSeedAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, Migrate(ctx, pool, Migrations, "migrations"))
	require.NoError(t, Migrate(ctx, pool, Migrations, "migrations"))

	accounts, err := auth.BuildAccounts(auth.DemoAccounts)
	require.NoError(t, err)
	store := auth.NewStore(pool)
	require.NoError(t, SeedAccounts(ctx, store, accounts))
	require.NoError(t, SeedAccounts(ctx, store, accounts))

	account, err := store.FindByEmail(ctx, "ADMIN@company.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, account.Role)
}
