// Package transport defines the capability a wire protocol client must offer
// to be driven by a resource fetcher, together with the pieces every
// concrete transport shares: transfer events, listener fan-out, progress
// reporting and the protocol registry.
package transport

import (
	"errors"

	"github.com/cbout22/repofetch/internal/config"
)

// Transport is a client for one wire protocol. A Transport serves a single
// session at a time: Connect, any number of Get calls, then Disconnect.
// Implementations are not safe for concurrent use.
type Transport interface {
	// Connect opens a session against endpoint. Absent options are nil.
	Connect(endpoint config.Endpoint, opts config.ConnectOptions) error

	// Get downloads the resource called name (relative to the endpoint URL)
	// into the local file destination, creating or truncating it.
	Get(name, destination string) error

	// Disconnect releases the session.
	Disconnect() error

	// AddTransferListener registers l for transfer events and debug output.
	AddTransferListener(l Listener)
}

// Failures a transport reports by wrapping one of these with %w. Any other
// error is a generic transfer failure.
var (
	// ErrAuthentication means the endpoint rejected the supplied credentials.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAuthorization means the caller may not read the requested resource.
	ErrAuthorization = errors.New("access denied")

	// ErrResourceDoesNotExist means the requested resource is absent.
	ErrResourceDoesNotExist = errors.New("resource does not exist")

	// ErrUnsupportedProtocol is returned by Registry.Lookup.
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
)
