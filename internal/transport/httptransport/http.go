// Package httptransport implements the "http" and "https" transports on top
// of net/http.
package httptransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/transport"
)

const defaultUserAgent = "repofetch/1.0"

// Protocols lists the protocol names this transport serves.
var Protocols = []string{"http", "https"}

// Transport fetches resources with plain HTTP GET requests relative to a
// base URL.
type Transport struct {
	transport.Listeners

	timeout     time.Duration // total cap per request, zero for none
	readTimeout time.Duration // longest wait for headers or the next body bytes
	userAgent   string
	base        http.RoundTripper // nil means NewHTTPTransport

	endpoint config.Endpoint
	baseURL  *url.URL
	client   *http.Client
}

var _ transport.Transport = (*Transport)(nil)

// Option customises a Transport.
type Option func(*Transport)

// WithTimeout caps the total time of each request, body included. There is
// no cap by default; stalled connections are caught by the read timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) { t.timeout = d }
}

// WithReadTimeout sets how long to wait for response headers or for the
// next bytes of a body before giving up. Zero disables it.
func WithReadTimeout(d time.Duration) Option {
	return func(t *Transport) { t.readTimeout = d }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(t *Transport) { t.userAgent = ua }
}

// WithRoundTripper sets the RoundTripper requests go through before
// credentials are applied. Proxy settings are ignored when it is set.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(t *Transport) { t.base = rt }
}

// New creates an unconnected Transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		readTimeout: transport.DefaultReadTimeout,
		userAgent:   defaultUserAgent,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect validates the endpoint URL and prepares an HTTP client carrying
// the given credentials and proxy. No request is sent until Get.
func (t *Transport) Connect(endpoint config.Endpoint, opts config.ConnectOptions) error {
	u, err := url.Parse(endpoint.URL)
	if err != nil {
		return fmt.Errorf("parsing repository url %q: %w", endpoint.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("repository url %q: scheme must be http or https", endpoint.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("repository url %q: missing host", endpoint.URL)
	}

	rt := t.base
	if rt == nil {
		rt = transport.NewHTTPTransport(opts.Proxy, t.readTimeout)
		if opts.Proxy != nil {
			t.Debug(fmt.Sprintf("using proxy %s for %s", opts.Proxy.URL().Redacted(), endpoint))
		}
	}
	if opts.Auth != nil {
		rt = &authTransport{auth: *opts.Auth, base: rt}
	}

	t.endpoint = endpoint
	t.baseURL = u
	t.client = &http.Client{Transport: rt, Timeout: t.timeout}
	t.Debug(fmt.Sprintf("connected to %s", endpoint))
	return nil
}

// Get downloads name into destination.
func (t *Transport) Get(name, destination string) error {
	if t.client == nil {
		return errors.New("http transport is not connected")
	}

	resourceURL := t.resourceURL(name)
	ev := transport.Event{Resource: name, Endpoint: t.endpoint.URL, Length: -1}

	initiated := ev
	initiated.Type = transport.TransferInitiated
	t.Fire(initiated)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return t.fail(ev, fmt.Errorf("creating request for %s: %w", resourceURL, err))
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return t.fail(ev, fmt.Errorf("fetching %s: %w", resourceURL, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return t.fail(ev, fmt.Errorf("%w: %s returned HTTP %d", transport.ErrAuthorization, resourceURL, resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return t.fail(ev, fmt.Errorf("%w: %s returned HTTP %d", transport.ErrResourceDoesNotExist, resourceURL, resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := fmt.Sprintf("transfer failed for %s, status code: %d", resourceURL, resp.StatusCode)
		if len(body) > 0 {
			msg += " " + strings.TrimSpace(string(body))
		}
		return t.fail(ev, errors.New(msg))
	}

	body := transport.NewIdleTimeoutReader(resp.Body, t.readTimeout, cancel)
	defer body.Stop()

	ev.Length = resp.ContentLength
	if _, err := transport.WriteDestination(destination, body, ev, &t.Listeners); err != nil {
		return err
	}
	return nil
}

// Disconnect drops idle connections. It is safe to call more than once.
func (t *Transport) Disconnect() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
		t.Debug(fmt.Sprintf("disconnected from %s", t.endpoint))
	}
	t.client = nil
	return nil
}

// resourceURL joins name onto the base URL path.
func (t *Transport) resourceURL(name string) string {
	u := *t.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(name, "/")
	u.RawPath = ""
	return u.String()
}

func (t *Transport) fail(ev transport.Event, err error) error {
	ev.Type = transport.TransferFailed
	ev.Err = err
	t.Fire(ev)
	return err
}
