package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/transport"
	"github.com/cbout22/repofetch/internal/transport/mocks"
)

func testRegistry(built *[]string) *transport.Registry {
	reg := transport.NewRegistry()
	for _, p := range []string{"http", "https", "s3"} {
		p := p
		reg.Register(func() transport.Transport {
			*built = append(*built, p)
			return &mocks.MockTransport{}
		}, p)
	}
	return reg
}

func TestFactory_DefaultsToHTTP(t *testing.T) {
	t.Parallel()

	var built []string
	fac := NewFactory(testRegistry(&built))

	f, err := fac.ResourceFetcher(nil, nil, nil, "")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, []string{"http"}, built)

	_, err = fac.HTTPFetcher(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"http", "http"}, built)
}

func TestFactory_NamedProtocol(t *testing.T) {
	t.Parallel()

	var built []string
	fac := NewFactory(testRegistry(&built), WithTempDir("/var/tmp"))

	auth := &config.AuthInfo{Username: "AKID", Password: "secret"}
	proxy := &config.ProxyInfo{Host: "proxy", Port: 8080}
	l := debugListener()

	f, err := fac.ResourceFetcher(l, auth, proxy, "S3")
	require.NoError(t, err)
	assert.Equal(t, []string{"s3"}, built)
	assert.Same(t, auth, f.auth)
	assert.Same(t, proxy, f.proxy)
	assert.Equal(t, "/var/tmp", f.tempDir)
	assert.Equal(t, transport.Listener(l), f.listener)
}

func TestFactory_FreshTransportPerFetcher(t *testing.T) {
	t.Parallel()

	var built []string
	fac := NewFactory(testRegistry(&built))

	a, err := fac.ResourceFetcher(nil, nil, nil, "https")
	require.NoError(t, err)
	b, err := fac.ResourceFetcher(nil, nil, nil, "https")
	require.NoError(t, err)
	assert.NotSame(t, a.transport, b.transport)
}

func TestFactory_UnknownProtocol(t *testing.T) {
	t.Parallel()

	var built []string
	f, err := NewFactory(testRegistry(&built)).ResourceFetcher(nil, nil, nil, "gopher")
	assert.Nil(t, f)
	assert.ErrorIs(t, err, transport.ErrUnsupportedProtocol)
	assert.Empty(t, built)
}
