package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pquerna/otp/totp"
)

//go:generate mockgen -destination=../../mocks/auth_mock.go -package=mocks hrportal/internal/domain/auth Authenticator

// Authenticator resolves credentials and tokens to identities.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (Identity, string, error)
	Resolve(ctx context.Context, token string) (Identity, error)
	Revoke(ctx context.Context, token string) error
}

// SecretCipher decrypts MFA secrets stored at rest.
type SecretCipher interface {
	DecryptString(value []byte) (string, error)
}

type lastLoginRecorder interface {
	UpdateLastLogin(ctx context.Context, userID string) error
}

type ServiceOptions struct {
	Directory Directory
	Sessions  SessionRegistry
	Secret    string
	TTL       time.Duration
	Cipher    SecretCipher
}

type Service struct {
	directory Directory
	sessions  SessionRegistry
	secret    string
	ttl       time.Duration
	cipher    SecretCipher
	now       func() time.Time
}

func NewService(opts ServiceOptions) *Service {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Service{
		directory: opts.Directory,
		sessions:  opts.Sessions,
		secret:    opts.Secret,
		ttl:       ttl,
		cipher:    opts.Cipher,
		now:       time.Now,
	}
}

func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Identity, string, error) {
	account, err := s.directory.FindByEmail(ctx, creds.Email)
	if errors.Is(err, ErrAccountNotFound) {
		return Identity{}, "", ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, "", fmt.Errorf("find account: %w", err)
	}
	if !account.Active() {
		return Identity{}, "", ErrInvalidCredentials
	}
	if err := CheckPassword(account.PasswordHash, creds.Password); err != nil {
		return Identity{}, "", ErrInvalidCredentials
	}
	if account.MFAEnabled {
		if err := s.checkMFA(account, creds.MFACode); err != nil {
			return Identity{}, "", err
		}
	}

	sessionID, err := NewSessionID()
	if err != nil {
		return Identity{}, "", fmt.Errorf("generate session id: %w", err)
	}
	record := SessionRecord{
		ID:        HashToken(sessionID),
		UserID:    account.ID,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, record); err != nil {
		return Identity{}, "", fmt.Errorf("create session: %w", err)
	}

	token, err := GenerateToken(s.secret, Claims{
		UserID:    account.ID,
		RoleName:  string(account.Role),
		SessionID: sessionID,
	}, s.ttl)
	if err != nil {
		return Identity{}, "", fmt.Errorf("sign token: %w", err)
	}

	if recorder, ok := s.directory.(lastLoginRecorder); ok {
		if err := recorder.UpdateLastLogin(ctx, account.ID); err != nil {
			slog.Warn("update last_login failed", "userId", account.ID, "err", err)
		}
	}

	return account.Identity, token, nil
}

func (s *Service) checkMFA(account Account, code string) error {
	if code == "" {
		return ErrMFARequired
	}
	secret := string(account.MFASecretEnc)
	if s.cipher != nil {
		decoded, err := s.cipher.DecryptString(account.MFASecretEnc)
		if err != nil {
			slog.Warn("mfa secret decrypt failed", "userId", account.ID, "err", err)
			return ErrInvalidCredentials
		}
		secret = decoded
	}
	if secret == "" || !totp.Validate(code, secret) {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Service) Resolve(ctx context.Context, token string) (Identity, error) {
	claims, err := ParseToken(s.secret, token)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	valid, err := s.sessions.Valid(ctx, claims.UserID, HashToken(claims.SessionID))
	if err != nil {
		return Identity{}, fmt.Errorf("check session: %w", err)
	}
	if !valid {
		return Identity{}, ErrInvalidToken
	}
	account, err := s.directory.FindByID(ctx, claims.UserID)
	if errors.Is(err, ErrAccountNotFound) {
		return Identity{}, ErrInvalidToken
	}
	if err != nil {
		return Identity{}, fmt.Errorf("find account: %w", err)
	}
	if !account.Active() {
		return Identity{}, ErrInvalidToken
	}
	return account.Identity, nil
}

func (s *Service) Revoke(ctx context.Context, token string) error {
	claims, err := ParseToken(s.secret, token)
	if err != nil {
		return nil
	}
	return s.sessions.Revoke(ctx, claims.UserID, HashToken(claims.SessionID))
}
