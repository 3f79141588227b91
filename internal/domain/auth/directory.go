package auth

import (
	"context"
	"fmt"
	"sync"
)

// Directory looks up accounts. Implementations return ErrAccountNotFound for
// unknown keys.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
}

type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byEmail map[string]string
}

func NewMemoryDirectory(accounts ...Account) *MemoryDirectory {
	d := &MemoryDirectory{
		byID:    map[string]Account{},
		byEmail: map[string]string{},
	}
	for _, account := range accounts {
		d.Put(account)
	}
	return d
}

func (d *MemoryDirectory) Put(account Account) {
	account.Email = NormalizeEmail(account.Email)
	account.Role = ParseRole(string(account.Role))
	d.mu.Lock()
	defer d.mu.Unlock()
	if previous, ok := d.byID[account.ID]; ok {
		delete(d.byEmail, previous.Email)
	}
	d.byID[account.ID] = account
	d.byEmail[account.Email] = account.ID
}

func (d *MemoryDirectory) FindByEmail(_ context.Context, email string) (Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[NormalizeEmail(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return d.byID[id], nil
}

func (d *MemoryDirectory) FindByID(_ context.Context, id string) (Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	account, ok := d.byID[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

// DemoAccount is a seed entry with a plaintext password.
type DemoAccount struct {
	ID       string
	Name     string
	Email    string
	Role     Role
	Password string
}

var DemoAccounts = []DemoAccount{
	{ID: "1", Name: "Admin User", Email: "admin@company.com", Role: RoleAdmin, Password: "admin123"},
	{ID: "2", Name: "Sarah Johnson", Email: "hr@company.com", Role: RoleHRManager, Password: "hr123"},
	{ID: "3", Name: "Michael Chen", Email: "manager@company.com", Role: RoleDepartmentManager, Password: "manager123"},
	{ID: "4", Name: "Emily Davis", Email: "employee@company.com", Role: RoleEmployee, Password: "employee123"},
	{ID: "5", Name: "David Wilson", Email: "recruiter@company.com", Role: RoleRecruiter, Password: "recruiter123"},
	{ID: "6", Name: "Lisa Anderson", Email: "training@company.com", Role: RoleTrainingManager, Password: "training123"},
}

// BuildAccounts hashes the seed passwords.
func BuildAccounts(seeds []DemoAccount) ([]Account, error) {
	accounts := make([]Account, 0, len(seeds))
	for _, seed := range seeds {
		hash, err := HashPassword(seed.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", seed.Email, err)
		}
		accounts = append(accounts, Account{
			Identity: Identity{
				ID:    seed.ID,
				Name:  seed.Name,
				Role:  seed.Role,
				Email: seed.Email,
			},
			PasswordHash: hash,
			Status:       AccountStatusActive,
		})
	}
	return accounts, nil
}
