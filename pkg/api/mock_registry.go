package api

import (
	"context"
	"sync"

	"github.com/foreverif/laf/pkg/domain"
)

// MockApplicationRegistry provides a mock implementation of domain.ApplicationRegistry for testing
type MockApplicationRegistry struct {
	mu     sync.RWMutex
	apps   map[string]*domain.Application
	err    error
	calls  int
	lookup []string
}

// NewMockApplicationRegistry creates a registry holding apps
func NewMockApplicationRegistry(apps ...*domain.Application) *MockApplicationRegistry {
	m := &MockApplicationRegistry{apps: make(map[string]*domain.Application)}
	for _, app := range apps {
		m.apps[app.AppID] = app
	}
	return m
}

// SetError makes every lookup fail with err
func (m *MockApplicationRegistry) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// GetApplicationByAppid returns the registered app or nil
func (m *MockApplicationRegistry) GetApplicationByAppid(ctx context.Context, appid string) (*domain.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lookup = append(m.lookup, appid)
	if m.err != nil {
		return nil, m.err
	}
	return m.apps[appid], nil
}

// GetCalls returns the number of lookups
func (m *MockApplicationRegistry) GetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// LastAppID returns the appid of the most recent lookup
func (m *MockApplicationRegistry) LastAppID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.lookup) == 0 {
		return ""
	}
	return m.lookup[len(m.lookup)-1]
}
