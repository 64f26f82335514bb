package serialdmx

import (
	"errors"
	"sync"
)

// MockPort implements Port for testing. It captures every write and can
// fail the next one on demand.
type MockPort struct {
	mu     sync.Mutex
	writes [][]byte
	err    error
	closed bool
}

// NewMockPort creates an empty MockPort.
func NewMockPort() *MockPort {
	return &MockPort{}
}

// Write captures a copy of p, or returns the error armed with FailWith.
func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("serial port closed")
	}
	if m.err != nil {
		err := m.err
		m.err = nil
		return 0, err
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	m.writes = append(m.writes, cp)
	return len(p), nil
}

// Close marks the port as closed.
func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// FailWith arms err to be returned by the next Write call.
func (m *MockPort) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Writes returns the captured write payloads.
func (m *MockPort) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}
