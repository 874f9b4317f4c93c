package vault

import (
	"context"
	"sync"
	"time"

	"github.com/pankaj-dahiya-devops/securescope/internal/models"
)

// Memory is a process-local Vault. Expired entries are dropped lazily on
// Retrieve and eagerly by Sweep.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

var _ Vault = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

func (m *Memory) Store(_ context.Context, cred models.Credential, ttl time.Duration) (string, error) {
	key, err := newKey()
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{Credential: cred, ExpiresAt: m.now().Add(normalizeTTL(ttl))}
	return key, nil
}

func (m *Memory) Retrieve(_ context.Context, key string) (*models.Credential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return nil, false, nil
	}
	cred := e.Credential
	return &cred, true, nil
}

func (m *Memory) Revoke(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Sweep removes every expired entry and returns how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}
