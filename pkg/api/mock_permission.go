package api

import (
	"context"
	"sync"

	"github.com/foreverif/laf/pkg/domain"
)

// PermissionCall records one CheckPermission invocation
type PermissionCall struct {
	UID        string
	Permission string
	AppID      string
}

// MockPermissionChecker returns a fixed decision and records its calls
type MockPermissionChecker struct {
	mu       sync.RWMutex
	decision domain.Decision
	err      error
	calls    []PermissionCall
}

// NewMockPermissionChecker creates a checker that always answers decision
func NewMockPermissionChecker(decision domain.Decision) *MockPermissionChecker {
	return &MockPermissionChecker{decision: decision}
}

// SetError makes every check fail with err
func (m *MockPermissionChecker) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// CheckPermission records the call and returns the configured decision
func (m *MockPermissionChecker) CheckPermission(ctx context.Context, uid, permission string, app *domain.Application) (domain.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := PermissionCall{UID: uid, Permission: permission}
	if app != nil {
		call.AppID = app.AppID
	}
	m.calls = append(m.calls, call)
	if m.err != nil {
		return domain.Decision{}, m.err
	}
	return m.decision, nil
}

// GetCalls returns the recorded calls
func (m *MockPermissionChecker) GetCalls() []PermissionCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]PermissionCall(nil), m.calls...)
}
