package db

import (
	"context"
	"fmt"
	"log/slog"

	"hrportal/internal/domain/auth"
)

type accountWriter interface {
	EnsureAccount(ctx context.Context, account auth.Account) error
}

// SeedAccounts inserts the accounts whose email is not present yet.
func SeedAccounts(ctx context.Context, store accountWriter, accounts []auth.Account) error {
	for _, account := range accounts {
		if err := store.EnsureAccount(ctx, account); err != nil {
			return fmt.Errorf("seed %s: %w", account.Email, err)
		}
	}
	slog.Info("seed accounts ensured", "count", len(accounts))
	return nil
}
