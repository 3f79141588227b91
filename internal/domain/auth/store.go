package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the PostgreSQL directory and session registry.
type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const accountColumns = "id, name, email, role, password_hash, status, mfa_enabled, mfa_secret_enc"

func scanAccount(row pgx.Row) (Account, error) {
	var out Account
	var role string
	err := row.Scan(&out.ID, &out.Name, &out.Email, &role, &out.PasswordHash, &out.Status, &out.MFAEnabled, &out.MFASecretEnc)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	out.Role = ParseRole(role)
	return out, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (Account, error) {
	return scanAccount(s.DB.QueryRow(ctx, "SELECT "+accountColumns+" FROM users WHERE email = $1", NormalizeEmail(email)))
}

func (s *Store) FindByID(ctx context.Context, id string) (Account, error) {
	return scanAccount(s.DB.QueryRow(ctx, "SELECT "+accountColumns+" FROM users WHERE id = $1", id))
}

// EnsureAccount inserts the account unless the email is already present.
func (s *Store) EnsureAccount(ctx context.Context, account Account) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO users (name, email, role, password_hash, status, mfa_enabled, mfa_secret_enc)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    ON CONFLICT (email) DO NOTHING
  `, account.Name, NormalizeEmail(account.Email), string(account.Role), account.PasswordHash, AccountStatusActive, account.MFAEnabled, account.MFASecretEnc)
	return err
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET last_login = now() WHERE id = $1", userID)
	return err
}

func (s *Store) Create(ctx context.Context, record SessionRecord) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO sessions (user_id, refresh_token, expires_at)
    VALUES ($1,$2,$3)
  `, record.UserID, record.ID, record.ExpiresAt)
	return err
}

func (s *Store) Valid(ctx context.Context, userID, idHash string) (bool, error) {
	var count int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM sessions
    WHERE user_id = $1 AND refresh_token = $2 AND expires_at > now() AND revoked_at IS NULL
  `, userID, idHash).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) Revoke(ctx context.Context, userID, idHash string) error {
	_, err := s.DB.Exec(ctx, "UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND refresh_token = $2 AND revoked_at IS NULL", userID, idHash)
	return err
}

// Sweep deletes sessions that expired or were revoked before now.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.DB.Exec(ctx, "DELETE FROM sessions WHERE expires_at <= $1 OR revoked_at <= $1", now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
