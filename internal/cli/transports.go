package cli

import (
	"time"

	"github.com/cbout22/repofetch/internal/transport"
	"github.com/cbout22/repofetch/internal/transport/filetransport"
	"github.com/cbout22/repofetch/internal/transport/githubtransport"
	"github.com/cbout22/repofetch/internal/transport/httptransport"
	"github.com/cbout22/repofetch/internal/transport/s3transport"
	"github.com/cbout22/repofetch/internal/transport/sshtransport"
)

// newRegistry registers every built-in transport. A non-zero timeout caps
// each request; zero leaves only the transports' stall limits.
func newRegistry(timeout time.Duration) *transport.Registry {
	var httpOpts []httptransport.Option
	var githubOpts []githubtransport.Option
	if timeout > 0 {
		httpOpts = append(httpOpts, httptransport.WithTimeout(timeout))
		githubOpts = append(githubOpts, githubtransport.WithTimeout(timeout))
	}

	reg := transport.NewRegistry()
	reg.Register(func() transport.Transport { return httptransport.New(httpOpts...) }, httptransport.Protocols...)
	reg.Register(func() transport.Transport { return s3transport.New(timeout) }, s3transport.Protocols...)
	reg.Register(func() transport.Transport { return sshtransport.New(timeout) }, sshtransport.Protocols...)
	reg.Register(func() transport.Transport { return githubtransport.New(githubOpts...) }, githubtransport.Protocols...)
	reg.Register(func() transport.Transport { return filetransport.New() }, filetransport.Protocols...)
	return reg
}
