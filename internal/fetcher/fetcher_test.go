package fetcher

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/transport"
	"github.com/cbout22/repofetch/internal/transport/mocks"
)

var central = config.NewEndpoint("central", "http://example/repo")

// writeDestination makes a mocked Get write content to its destination.
func writeDestination(content string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		if err := os.WriteFile(args.String(1), []byte(content), 0644); err != nil {
			panic(err)
		}
	}
}

func debugListener() *mocks.MockListener {
	l := &mocks.MockListener{}
	l.On("Debug", mock.AnythingOfType("string")).Return()
	return l
}

func debugMessages(l *mocks.MockListener) []string {
	var out []string
	for _, call := range l.Calls {
		if call.Method == "Debug" {
			out = append(out, call.Arguments.String(0))
		}
	}
	return out
}

func TestConnect_PassesOptionPresenceUnchanged(t *testing.T) {
	t.Parallel()

	auth := &config.AuthInfo{Username: "deploy", Password: "secret"}
	proxy := &config.ProxyInfo{Host: "proxy.example", Port: 3128}

	cases := []struct {
		name  string
		auth  *config.AuthInfo
		proxy *config.ProxyInfo
	}{
		{"neither", nil, nil},
		{"auth only", auth, nil},
		{"proxy only", nil, proxy},
		{"auth and proxy", auth, proxy},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mt := &mocks.MockTransport{}
			mt.On("Connect", central, mock.MatchedBy(func(o config.ConnectOptions) bool {
				return o.Auth == tc.auth && o.Proxy == tc.proxy
			})).Return(nil).Once()

			f := New(mt, nil, tc.auth, tc.proxy)
			require.NoError(t, f.Connect(central.ID, central.URL))

			mt.AssertExpectations(t)
			mt.AssertNumberOfCalls(t, "Connect", 1)
			mt.AssertNotCalled(t, "AddTransferListener", mock.Anything)
		})
	}
}

func TestConnect_RegistersListener(t *testing.T) {
	t.Parallel()

	l := debugListener()
	mt := &mocks.MockTransport{}
	mt.On("AddTransferListener", l).Return().Once()
	mt.On("Connect", central, config.ConnectOptions{}).Return(nil)

	f := New(mt, l, nil, nil)
	require.NoError(t, f.Connect(central.ID, central.URL))
	mt.AssertExpectations(t)
	assert.Empty(t, debugMessages(l))
}

func TestConnect_AuthenticationFailure(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("%w: bad password for deploy", transport.ErrAuthentication)
	l := debugListener()
	mt := &mocks.MockTransport{}
	mt.On("AddTransferListener", l).Return()
	mt.On("Connect", central, mock.Anything).Return(cause)

	f := New(mt, l, &config.AuthInfo{Username: "deploy"}, nil)
	err := f.Connect(central.ID, central.URL)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, transport.ErrAuthentication)
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindConnection, kind)
	assert.Contains(t, err.Error(), "central")
	assert.Contains(t, err.Error(), "authentication failed")
	assert.Equal(t, []string{err.Error() + "; " + cause.Error()}, debugMessages(l))

	mt.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestConnect_TransportFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	mt := &mocks.MockTransport{}
	mt.On("Connect", central, mock.Anything).Return(cause)

	err := New(mt, nil, nil, nil).Connect(central.ID, central.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, "transport failure connecting to central (http://example/repo)", err.Error())
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestDisconnect_NoTransport(t *testing.T) {
	t.Parallel()

	f := New(nil, nil, nil, nil)
	assert.NoError(t, f.Disconnect())
	assert.ErrorIs(t, f.Connect("central", "http://example/repo"), ErrConnection)
	assert.ErrorIs(t, f.RetrieveFile("a.jar", filepath.Join(t.TempDir(), "a.jar")), ErrConnection)
}

func TestRetrieve_NoTransportLeavesNoTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rc, err := New(nil, nil, nil, nil, WithTempDir(dir)).Retrieve("a.jar")
	assert.Nil(t, rc)
	assert.ErrorIs(t, err, ErrConnection)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRetrieveFile_NoTransportRemovesTarget(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "a.jar")
	require.NoError(t, os.WriteFile(target, []byte("stale"), 0644))

	err := New(nil, nil, nil, nil).RetrieveFile("a.jar", target)
	assert.ErrorIs(t, err, ErrConnection)
	assert.NoFileExists(t, target)
}

func TestDisconnect_Failure(t *testing.T) {
	t.Parallel()

	mt := &mocks.MockTransport{}
	mt.On("Disconnect").Return(errors.New("connection already closed"))

	err := New(mt, nil, nil, nil).Disconnect()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, "connection already closed", err.Error())
	mt.AssertNumberOfCalls(t, "Disconnect", 1)
}

func TestRetrieveFile_Success(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "out.jar")
	mt := &mocks.MockTransport{}
	mt.On("Get", "junit/junit.jar", target).Run(writeDestination("jar bytes")).Return(nil)

	require.NoError(t, New(mt, nil, nil, nil).RetrieveFile("junit/junit.jar", target))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "jar bytes", string(got))
}

func TestRetrieveFile_FailureRemovesTarget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		cause    error
		kind     Kind
		sentinel error
		message  string
	}{
		{
			name:     "authorization",
			cause:    fmt.Errorf("%w: HTTP 403", transport.ErrAuthorization),
			kind:     KindAuthorization,
			sentinel: ErrAuthorization,
			message:  "authorization failed retrieving foo/bar.jar",
		},
		{
			name:     "not found",
			cause:    fmt.Errorf("%w: HTTP 404", transport.ErrResourceDoesNotExist),
			kind:     KindNotFound,
			sentinel: ErrNotFound,
			message:  "resource foo/bar.jar does not exist",
		},
		{
			name:     "transfer",
			cause:    errors.New("connection reset by peer"),
			kind:     KindTransfer,
			sentinel: ErrTransfer,
			message:  "transfer for foo/bar.jar failed; connection reset by peer",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			target := filepath.Join(t.TempDir(), "out.jar")
			l := debugListener()
			mt := &mocks.MockTransport{}
			mt.On("Get", "foo/bar.jar", target).Run(writeDestination("partial")).Return(tc.cause)

			err := New(mt, l, nil, nil).RetrieveFile("foo/bar.jar", target)
			require.Error(t, err)

			assert.NoFileExists(t, target)
			assert.ErrorIs(t, err, tc.sentinel)
			assert.ErrorIs(t, err, tc.cause)
			assert.Equal(t, tc.message, err.Error())

			var fe *Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.kind, fe.Kind)
			assert.Equal(t, "foo/bar.jar", fe.Resource)

			assert.Equal(t, tc.kind == KindNotFound, IsNotFound(err))
			assert.Equal(t, tc.kind == KindNotFound, errors.Is(err, fs.ErrNotExist))

			msgs := debugMessages(l)
			require.Len(t, msgs, 1)
			assert.Contains(t, msgs[0], tc.cause.Error())
		})
	}
}

func TestRetrieveFile_FailureWithoutTarget(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "never-created.jar")
	mt := &mocks.MockTransport{}
	mt.On("Get", "a.jar", target).Return(fmt.Errorf("%w: a.jar", transport.ErrResourceDoesNotExist))

	err := New(mt, nil, nil, nil).RetrieveFile("a.jar", target)
	assert.True(t, IsNotFound(err))
	assert.NoFileExists(t, target)
}

func TestRetrieve_StreamsAndRemovesTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	want := []byte{0x50, 0x4B, 0x03, 0x04, 0x14, 0x00}
	mt := &mocks.MockTransport{}
	mt.On("Get", "a.jar", mock.AnythingOfType("string")).Run(writeDestination(string(want))).Return(nil)

	rc, err := New(mt, nil, nil, nil, WithTempDir(dir)).Retrieve("a.jar")
	require.NoError(t, err)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, rc.Close())
	assertEmptyDir(t, dir)
	assert.NoError(t, rc.Close(), "second Close")
}

func TestRetrieve_PartialReadThenClose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mt := &mocks.MockTransport{}
	mt.On("Get", "big.bin", mock.AnythingOfType("string")).Run(writeDestination("0123456789")).Return(nil)

	rc, err := New(mt, nil, nil, nil, WithTempDir(dir)).Retrieve("big.bin")
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = io.ReadFull(rc, buf)
	require.NoError(t, err)
	assert.Equal(t, "012", string(buf))

	require.NoError(t, rc.Close())
	assertEmptyDir(t, dir)
}

func TestRetrieve_FailureLeavesNoTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cause := fmt.Errorf("%w: foo/bar.jar", transport.ErrResourceDoesNotExist)
	mt := &mocks.MockTransport{}
	mt.On("Get", "foo/bar.jar", mock.AnythingOfType("string")).Run(writeDestination("half")).Return(cause)

	rc, err := New(mt, nil, nil, nil, WithTempDir(dir)).Retrieve("foo/bar.jar")
	assert.Nil(t, rc)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "resource foo/bar.jar does not exist", err.Error())
	assertEmptyDir(t, dir)
}

func TestTempFileReader_ReadErrorThenClose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "staged")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	f, err := os.Open(path)
	require.NoError(t, err)
	trackTempFile(path)

	r := &tempFileReader{f: f, path: path}
	// Closing the handle underneath makes the next Read fail.
	require.NoError(t, f.Close())
	_, err = r.Read(make([]byte, 4))
	require.Error(t, err)

	assert.NoError(t, r.Close())
	assert.NoFileExists(t, path)
}

// TestRemoveTempFiles is not parallel: it sweeps the process-wide set.
func TestRemoveTempFiles(t *testing.T) {
	dir := t.TempDir()
	mt := &mocks.MockTransport{}
	mt.On("Get", "leak.txt", mock.AnythingOfType("string")).Run(writeDestination("leak")).Return(nil)

	rc, err := New(mt, nil, nil, nil, WithTempDir(dir)).Retrieve("leak.txt")
	require.NoError(t, err)

	RemoveTempFiles()
	assertEmptyDir(t, dir)
	assert.NoError(t, rc.Close(), "Close after the sweep")
}

func TestTempPattern(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"junit/junit/4.13.2/junit-4.13.2.jar": "repofetch-*-junit-4.13.2.jar",
		"index.gz":                            "repofetch-*-index.gz",
		"dir/":                                "repofetch-*-resource",
		"":                                    "repofetch-*-resource",
		"weird*name":                          "repofetch-*-weird_name",
	}
	for name, want := range cases {
		assert.Equal(t, want, tempPattern(name), "tempPattern(%q)", name)
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "connection", KindConnection.String())
	assert.Equal(t, "authorization", KindAuthorization.String())
	assert.Equal(t, "not found", KindNotFound.String())
	assert.Equal(t, "transfer", KindTransfer.String())
	assert.Equal(t, "unknown", Kind(0).String())
}

func TestKindOf_ForeignError(t *testing.T) {
	t.Parallel()

	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsNotFound(nil))

	wrapped := fmt.Errorf("syncing: %w", &Error{Kind: KindTransfer, Message: "x"})
	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindTransfer, kind)
	assert.False(t, errors.Is(wrapped, ErrNotFound))
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "leftover files in %s", dir)
}
