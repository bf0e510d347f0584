package fetcher

import (
	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/transport"
)

// DefaultProtocol is used when no protocol is named. Older callers only
// ever asked for plain HTTP fetchers.
const DefaultProtocol = "http"

// Factory builds Fetchers over transports from a Registry.
type Factory struct {
	registry *transport.Registry
	opts     []Option
}

// NewFactory returns a Factory drawing transports from reg. opts are applied
// to every Fetcher it builds.
func NewFactory(reg *transport.Registry, opts ...Option) *Factory {
	return &Factory{registry: reg, opts: opts}
}

// ResourceFetcher returns an unconnected Fetcher over a fresh transport for
// protocol. An empty protocol means DefaultProtocol. No I/O happens here; an
// unknown protocol fails before any Fetcher exists.
func (fac *Factory) ResourceFetcher(listener transport.Listener, auth *config.AuthInfo, proxy *config.ProxyInfo, protocol string) (*Fetcher, error) {
	if protocol == "" {
		protocol = DefaultProtocol
	}
	t, err := fac.registry.Lookup(protocol)
	if err != nil {
		return nil, err
	}
	return New(t, listener, auth, proxy, fac.opts...), nil
}

// HTTPFetcher returns a Fetcher over the default protocol with no
// credentials or proxy.
func (fac *Factory) HTTPFetcher(listener transport.Listener) (*Fetcher, error) {
	return fac.ResourceFetcher(listener, nil, nil, DefaultProtocol)
}
