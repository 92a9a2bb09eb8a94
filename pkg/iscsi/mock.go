package iscsi

import (
	"fmt"
	"sync"
	"time"
)

// MockInitiator is an in-memory implementation of Initiator for testing.
// Login marks the target's device path as present; Logout removes it,
// mirroring what the kernel does for a real session.
type MockInitiator struct {
	mu sync.Mutex

	names   []string
	targets []string
	paths   map[string]bool

	discoverErr error
	loginErr    error
	logoutErr   error

	// LoginCalls and LogoutCalls record target IQNs in invocation order
	LoginCalls  []string
	LogoutCalls []string
}

// NewMockInitiator creates a mock with the given local initiator names.
func NewMockInitiator(names ...string) *MockInitiator {
	if len(names) == 0 {
		names = []string{"iqn.1993-08.org.debian:01:mock"}
	}
	return &MockInitiator{
		names: names,
		paths: make(map[string]bool),
	}
}

// SetTargets sets the IQNs returned by Discover (test helper)
func (m *MockInitiator) SetTargets(targets ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets = targets
}

// SetPathExists marks a device path as present or absent (test helper)
func (m *MockInitiator) SetPathExists(path string, exists bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exists {
		m.paths[path] = true
	} else {
		delete(m.paths, path)
	}
}

// SetDiscoverError injects a Discover failure (test helper)
func (m *MockInitiator) SetDiscoverError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discoverErr = err
}

// SetLoginError injects a Login failure (test helper)
func (m *MockInitiator) SetLoginError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginErr = err
}

// SetLogoutError injects a Logout failure (test helper)
func (m *MockInitiator) SetLogoutError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutErr = err
}

// InitiatorNames implements Initiator
func (m *MockInitiator) InitiatorNames() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.names) == 0 {
		return nil, fmt.Errorf("no initiator names configured")
	}
	return append([]string(nil), m.names...), nil
}

// PathExists implements Initiator
func (m *MockInitiator) PathExists(path string, timeout time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paths[path]
}

// Discover implements Initiator
func (m *MockInitiator) Discover(svip string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.discoverErr != nil {
		return nil, m.discoverErr
	}
	return append([]string(nil), m.targets...), nil
}

// Login implements Initiator
func (m *MockInitiator) Login(svip, targetIQN string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoginCalls = append(m.LoginCalls, targetIQN)
	if m.loginErr != nil {
		return m.loginErr
	}
	m.paths[DevicePath(svip, targetIQN)] = true
	return nil
}

// Logout implements Initiator
func (m *MockInitiator) Logout(svip, targetIQN string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LogoutCalls = append(m.LogoutCalls, targetIQN)
	if m.logoutErr != nil {
		return m.logoutErr
	}
	delete(m.paths, DevicePath(svip, targetIQN))
	return nil
}
