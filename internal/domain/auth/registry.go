package auth

import (
	"context"
	"sync"
	"time"
)

// SessionRecord is the server-side half of a login. ID holds HashToken of the
// opaque session id carried in the token.
type SessionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type SessionRegistry interface {
	Create(ctx context.Context, record SessionRecord) error
	Valid(ctx context.Context, userID, idHash string) (bool, error)
	Revoke(ctx context.Context, userID, idHash string) error
}

type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[string]SessionRecord
	now      func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: map[string]SessionRecord{}, now: time.Now}
}

func (m *MemoryRegistry) Create(_ context.Context, record SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[record.ID] = record
	return nil
}

func (m *MemoryRegistry) Valid(_ context.Context, userID, idHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.sessions[idHash]
	if !ok || record.UserID != userID {
		return false, nil
	}
	if !m.now().Before(record.ExpiresAt) {
		delete(m.sessions, idHash)
		return false, nil
	}
	return true, nil
}

func (m *MemoryRegistry) Revoke(_ context.Context, userID, idHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.sessions[idHash]; ok && record.UserID == userID {
		delete(m.sessions, idHash)
	}
	return nil
}

// Sweep drops expired sessions and reports how many were removed.
func (m *MemoryRegistry) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, record := range m.sessions {
		if !now.Before(record.ExpiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
