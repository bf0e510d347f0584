// Package filetransport implements the "file" transport, which copies
// resources out of a local directory tree. It backs local mirrors and tests.
package filetransport

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/transport"
)

// Protocols lists the protocol names this transport serves.
var Protocols = []string{"file"}

// Transport copies files below a base directory.
type Transport struct {
	transport.Listeners

	endpoint config.Endpoint
	base     string
}

var _ transport.Transport = (*Transport)(nil)

// New creates an unconnected Transport.
func New() *Transport {
	return &Transport{}
}

// Connect checks that the URL names an existing directory.
func (t *Transport) Connect(endpoint config.Endpoint, _ config.ConnectOptions) error {
	u, err := url.Parse(endpoint.URL)
	if err != nil {
		return fmt.Errorf("parsing repository url %q: %w", endpoint.URL, err)
	}
	if u.Scheme != "file" {
		return fmt.Errorf("repository url %q: scheme must be file", endpoint.URL)
	}
	if u.Host != "" && u.Host != "localhost" {
		return fmt.Errorf("repository url %q: remote hosts are not supported", endpoint.URL)
	}

	base := filepath.FromSlash(u.Path)
	info, err := os.Stat(base)
	if err != nil {
		return fmt.Errorf("repository %s: %w", endpoint, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("repository %s: %s is not a directory", endpoint, base)
	}

	t.endpoint = endpoint
	t.base = base
	t.Debug(fmt.Sprintf("connected to %s", endpoint))
	return nil
}

// Get copies base/name into destination. Names cannot climb out of base.
func (t *Transport) Get(name, destination string) error {
	if t.base == "" {
		return errors.New("file transport is not connected")
	}

	src := t.sourcePath(name)
	ev := transport.Event{Resource: name, Endpoint: t.endpoint.URL, Length: -1}
	initiated := ev
	initiated.Type = transport.TransferInitiated
	t.Fire(initiated)

	f, err := os.Open(src)
	if err != nil {
		return t.fail(ev, mapError(src, err))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return t.fail(ev, mapError(src, err))
	}
	if info.IsDir() {
		return t.fail(ev, fmt.Errorf("%s is a directory", src))
	}

	ev.Length = info.Size()
	if _, err := transport.WriteDestination(destination, f, ev, &t.Listeners); err != nil {
		return err
	}
	return nil
}

// Disconnect forgets the base directory.
func (t *Transport) Disconnect() error {
	t.base = ""
	return nil
}

func (t *Transport) sourcePath(name string) string {
	return filepath.Join(t.base, filepath.Clean("/"+filepath.FromSlash(name)))
}

func (t *Transport) fail(ev transport.Event, err error) error {
	ev.Type = transport.TransferFailed
	ev.Err = err
	t.Fire(ev)
	return err
}

func mapError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", transport.ErrResourceDoesNotExist, path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", transport.ErrAuthorization, path)
	default:
		return fmt.Errorf("reading %s: %w", path, err)
	}
}
