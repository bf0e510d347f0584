// Package fetcher drives a transport through one connect, retrieve,
// disconnect session and translates transport failures into a small set of
// error kinds callers can act on.
package fetcher

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/transport"
)

// ResourceFetcher retrieves named resources from one repository.
type ResourceFetcher interface {
	Connect(id, url string) error
	Disconnect() error
	Retrieve(name string) (io.ReadCloser, error)
	RetrieveFile(name, targetFile string) error
}

// Fetcher is a ResourceFetcher over a single transport. Call Connect once,
// then Retrieve or RetrieveFile any number of times, then Disconnect. A
// Fetcher is not safe for concurrent use; give each worker its own.
type Fetcher struct {
	transport transport.Transport
	listener  transport.Listener
	auth      *config.AuthInfo
	proxy     *config.ProxyInfo
	tempDir   string
}

var _ ResourceFetcher = (*Fetcher)(nil)

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithTempDir sets the directory Retrieve stages downloads in. The default
// is os.TempDir().
func WithTempDir(dir string) Option {
	return func(f *Fetcher) { f.tempDir = dir }
}

// New creates a Fetcher. listener, auth and proxy may each be nil.
func New(t transport.Transport, listener transport.Listener, auth *config.AuthInfo, proxy *config.ProxyInfo, opts ...Option) *Fetcher {
	f := &Fetcher{
		transport: t,
		listener:  listener,
		auth:      auth,
		proxy:     proxy,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect opens a session against the repository id at url. Neither value
// is validated here; the transport rejects what it cannot use.
func (f *Fetcher) Connect(id, url string) error {
	endpoint := config.NewEndpoint(id, url)
	if f.transport == nil {
		return &Error{Kind: KindConnection, Message: fmt.Sprintf("no transport for %s", endpoint)}
	}

	if f.listener != nil {
		f.transport.AddTransferListener(f.listener)
	}

	err := f.transport.Connect(endpoint, config.ConnectOptions{Auth: f.auth, Proxy: f.proxy})
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf("transport failure connecting to %s", endpoint)
	if errors.Is(err, transport.ErrAuthentication) {
		msg = fmt.Sprintf("authentication failed connecting to %s", endpoint)
	}
	f.debug(msg, err)
	return &Error{Kind: KindConnection, Message: msg, Err: err}
}

// Disconnect closes the session. It does nothing when the Fetcher has no
// transport, so it can be deferred unconditionally.
func (f *Fetcher) Disconnect() error {
	if f.transport == nil {
		return nil
	}
	if err := f.transport.Disconnect(); err != nil {
		return &Error{Kind: KindConnection, Message: err.Error(), Err: err}
	}
	return nil
}

// RetrieveFile downloads name into targetFile. On failure targetFile is
// removed, so it never holds a partial download.
func (f *Fetcher) RetrieveFile(name, targetFile string) error {
	if f.transport == nil {
		f.removeTarget(targetFile)
		return errNoTransport(name)
	}
	err := f.transport.Get(name, targetFile)
	if err == nil {
		return nil
	}
	f.removeTarget(targetFile)

	var fe *Error
	switch {
	case errors.Is(err, transport.ErrAuthorization):
		fe = &Error{Kind: KindAuthorization, Message: fmt.Sprintf("authorization failed retrieving %s", name)}
		f.debug(fe.Message, err)
	case errors.Is(err, transport.ErrResourceDoesNotExist):
		fe = &Error{Kind: KindNotFound, Message: fmt.Sprintf("resource %s does not exist", name)}
		f.debug(fe.Message, err)
	default:
		base := fmt.Sprintf("transfer for %s failed", name)
		fe = &Error{Kind: KindTransfer, Message: base + "; " + err.Error()}
		f.debug(base, err)
	}
	fe.Resource = name
	fe.Err = err
	return fe
}

// Retrieve downloads name to a temp file and returns a reader over it.
// Closing the reader deletes the file, however much of it was read.
func (f *Fetcher) Retrieve(name string) (io.ReadCloser, error) {
	if f.transport == nil {
		return nil, errNoTransport(name)
	}
	tmp, err := os.CreateTemp(f.tempDir, tempPattern(name))
	if err != nil {
		return nil, &Error{Kind: KindTransfer, Resource: name, Message: fmt.Sprintf("transfer for %s failed; %v", name, err), Err: err}
	}
	path := tmp.Name()
	trackTempFile(path)
	tmp.Close()

	if err := f.RetrieveFile(name, path); err != nil {
		untrackTempFile(path)
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		os.Remove(path)
		untrackTempFile(path)
		return nil, &Error{Kind: KindTransfer, Resource: name, Message: fmt.Sprintf("transfer for %s failed; %v", name, err), Err: err}
	}
	return &tempFileReader{f: file, path: path}, nil
}

func (f *Fetcher) removeTarget(targetFile string) {
	if err := os.Remove(targetFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		f.debug(fmt.Sprintf("could not remove %s", targetFile), err)
	}
}

func errNoTransport(name string) *Error {
	return &Error{Kind: KindConnection, Resource: name, Message: fmt.Sprintf("no transport to retrieve %s", name)}
}

func (f *Fetcher) debug(msg string, cause error) {
	if f.listener != nil {
		f.listener.Debug(msg + "; " + cause.Error())
	}
}
