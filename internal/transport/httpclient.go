package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cbout22/repofetch/internal/config"
)

// Stall limits for HTTP-based transports. They fire when a connection stops
// making progress, never because a large transfer takes long.
const (
	DialTimeout         = 30 * time.Second
	TLSHandshakeTimeout = 10 * time.Second
	DefaultReadTimeout  = 60 * time.Second
)

// ErrStalled means no data arrived within the read timeout.
var ErrStalled = errors.New("transfer stalled")

// NewHTTPTransport clones http.DefaultTransport with stall timeouts.
// readTimeout bounds the wait for response headers; zero leaves it unset.
// When p is non-nil requests go through the proxy unless p bypasses the host.
func NewHTTPTransport(p *config.ProxyInfo, readTimeout time.Duration) *http.Transport {
	ht := http.DefaultTransport.(*http.Transport).Clone()
	ht.DialContext = (&net.Dialer{Timeout: DialTimeout, KeepAlive: 30 * time.Second}).DialContext
	ht.TLSHandshakeTimeout = TLSHandshakeTimeout
	ht.ResponseHeaderTimeout = readTimeout
	if p != nil {
		proxy := *p
		proxyURL := proxy.URL()
		ht.Proxy = func(req *http.Request) (*url.URL, error) {
			if proxy.Bypass(req.URL.Host) {
				return nil, nil
			}
			return proxyURL, nil
		}
	}
	return ht
}

// IdleTimeoutReader cancels a transfer when no data arrives for the read
// timeout. Every successful read restarts the clock.
type IdleTimeoutReader struct {
	r       io.Reader
	idle    time.Duration
	timer   *time.Timer
	stalled atomic.Bool
}

// NewIdleTimeoutReader wraps r. cancel must abort the pending Read, usually
// by cancelling the request context. A zero idle disables the watch.
func NewIdleTimeoutReader(r io.Reader, idle time.Duration, cancel context.CancelFunc) *IdleTimeoutReader {
	ir := &IdleTimeoutReader{r: r, idle: idle}
	if idle > 0 {
		ir.timer = time.AfterFunc(idle, func() {
			ir.stalled.Store(true)
			cancel()
		})
	}
	return ir
}

func (ir *IdleTimeoutReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if ir.timer == nil {
		return n, err
	}
	if ir.stalled.Load() {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return n, fmt.Errorf("%w: no data for %s: %v", ErrStalled, ir.idle, err)
	}
	if n > 0 {
		ir.timer.Reset(ir.idle)
	}
	return n, err
}

// Stop ends the watch. Call it once the body has been consumed.
func (ir *IdleTimeoutReader) Stop() {
	if ir.timer != nil {
		ir.timer.Stop()
	}
}
