package auth

import (
	"fmt"
	"strings"
)

// Identity is the authenticated user's stable attributes for a session.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
	Email string `json:"email"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode,omitempty"`
}

const (
	AccountStatusActive   = "active"
	AccountStatusDisabled = "disabled"
)

// Account is a directory record backing an Identity.
type Account struct {
	Identity
	PasswordHash string
	Status       string
	MFAEnabled   bool
	MFASecretEnc []byte
}

func (a Account) Active() bool {
	return a.Status == "" || a.Status == AccountStatusActive
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SecretSealer encrypts MFA secrets before they are stored.
type SecretSealer interface {
	EncryptString(value string) ([]byte, error)
}

// EnableMFA turns on TOTP for the account with the given base32 secret.
func (a *Account) EnableMFA(secret string, sealer SecretSealer) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fmt.Errorf("mfa secret is empty")
	}
	sealed := []byte(secret)
	if sealer != nil {
		var err error
		if sealed, err = sealer.EncryptString(secret); err != nil {
			return fmt.Errorf("seal mfa secret: %w", err)
		}
	}
	a.MFAEnabled = true
	a.MFASecretEnc = sealed
	return nil
}
