// Package mocks provides mock implementations for testing
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/transport"
)

// MockTransport is a mock implementation of transport.Transport
type MockTransport struct {
	mock.Mock
}

var _ transport.Transport = (*MockTransport)(nil)

// Connect mocks the Connect method
func (m *MockTransport) Connect(endpoint config.Endpoint, opts config.ConnectOptions) error {
	args := m.Called(endpoint, opts)
	return args.Error(0)
}

// Get mocks the Get method
func (m *MockTransport) Get(name, destination string) error {
	args := m.Called(name, destination)
	return args.Error(0)
}

// Disconnect mocks the Disconnect method
func (m *MockTransport) Disconnect() error {
	args := m.Called()
	return args.Error(0)
}

// AddTransferListener mocks the AddTransferListener method
func (m *MockTransport) AddTransferListener(l transport.Listener) {
	m.Called(l)
}
