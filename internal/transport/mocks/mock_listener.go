package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/cbout22/repofetch/internal/transport"
)

// MockListener is a mock implementation of transport.Listener
type MockListener struct {
	mock.Mock
}

var _ transport.Listener = (*MockListener)(nil)

// TransferEvent mocks the TransferEvent method
func (m *MockListener) TransferEvent(ev transport.Event) {
	m.Called(ev)
}

// Debug mocks the Debug method
func (m *MockListener) Debug(message string) {
	m.Called(message)
}
