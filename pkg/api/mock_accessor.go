package api

import (
	"context"
	"sync"

	"github.com/foreverif/laf/pkg/domain"
)

// CreateIndexCall records one CreateIndex invocation
type CreateIndexCall struct {
	DB         string
	Collection string
	Spec       domain.IndexSpec
	Options    domain.IndexOptions
}

// MockDbAccessorProvider provides mock application databases for testing.
// Every database shares the same result, error and call log.
type MockDbAccessorProvider struct {
	mu          sync.RWMutex
	result      interface{}
	createErr   error
	providerErr error
	accessCalls int
	releases    int
	createCalls []CreateIndexCall
}

// NewMockDbAccessorProvider creates a provider whose CreateIndex returns result
func NewMockDbAccessorProvider(result interface{}) *MockDbAccessorProvider {
	return &MockDbAccessorProvider{result: result}
}

// SetCreateError makes CreateIndex fail with err
func (m *MockDbAccessorProvider) SetCreateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// SetProviderError makes GetApplicationDbAccessor fail with err
func (m *MockDbAccessorProvider) SetProviderError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providerErr = err
}

// GetApplicationDbAccessor returns a mock accessor for app
func (m *MockDbAccessorProvider) GetApplicationDbAccessor(ctx context.Context, app *domain.Application) (domain.DbAccessor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accessCalls++
	if m.providerErr != nil {
		return nil, m.providerErr
	}
	return &mockDbAccessor{provider: m, db: app.DatabaseName()}, nil
}

// GetAccessCalls returns the number of accessor requests
func (m *MockDbAccessorProvider) GetAccessCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.accessCalls
}

// GetReleases returns the number of released accessors
func (m *MockDbAccessorProvider) GetReleases() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.releases
}

// GetCreateCalls returns the recorded CreateIndex calls
func (m *MockDbAccessorProvider) GetCreateCalls() []CreateIndexCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]CreateIndexCall(nil), m.createCalls...)
}

type mockDbAccessor struct {
	provider *MockDbAccessorProvider
	db       string
}

func (a *mockDbAccessor) Collection(name string) domain.CollectionAccessor {
	return &mockCollection{accessor: a, name: name}
}

func (a *mockDbAccessor) Release() {
	a.provider.mu.Lock()
	defer a.provider.mu.Unlock()
	a.provider.releases++
}

type mockCollection struct {
	accessor *mockDbAccessor
	name     string
}

func (c *mockCollection) CreateIndex(ctx context.Context, spec domain.IndexSpec, opts domain.IndexOptions) (interface{}, error) {
	m := c.accessor.provider
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls = append(m.createCalls, CreateIndexCall{
		DB:         c.accessor.db,
		Collection: c.name,
		Spec:       spec,
		Options:    opts,
	})
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.result, nil
}
