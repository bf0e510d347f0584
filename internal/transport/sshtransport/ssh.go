// Package sshtransport implements the "scp" and "ssh" transports. Files are
// streamed with `cat` over an SSH session, so any host with a POSIX shell
// works as a repository.
//
// Repository URLs have the form
//
//	scp://[user@]host[:port]/base/dir
package sshtransport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/net/proxy"

	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/transport"
)

const defaultPort = 22

// Protocols lists the protocol names this transport serves.
var Protocols = []string{"scp", "ssh"}

// Transport reads files below a base directory on a remote host.
type Transport struct {
	transport.Listeners

	timeout time.Duration

	endpoint config.Endpoint
	base     string
	client   *ssh.Client
}

var _ transport.Transport = (*Transport)(nil)

// New creates an unconnected Transport. timeout bounds dialing and the SSH
// handshake; zero means 30 seconds.
func New(timeout time.Duration) *Transport {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Transport{timeout: timeout}
}

type location struct {
	user string
	addr string
	host string
	base string
}

func parseLocation(raw string) (location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return location{}, fmt.Errorf("parsing repository url %q: %w", raw, err)
	}
	if u.Scheme != "scp" && u.Scheme != "ssh" {
		return location{}, fmt.Errorf("repository url %q: scheme must be scp or ssh", raw)
	}
	host := u.Hostname()
	if host == "" {
		return location{}, fmt.Errorf("repository url %q: missing host", raw)
	}
	port := defaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return location{}, fmt.Errorf("repository url %q: invalid port %q", raw, p)
		}
	}
	base := u.Path
	if base == "" {
		base = "."
	}
	return location{
		user: u.User.Username(),
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		host: host,
		base: base,
	}, nil
}

// Connect dials the host, optionally through a SOCKS5 proxy, and completes
// the SSH handshake.
func (t *Transport) Connect(endpoint config.Endpoint, opts config.ConnectOptions) error {
	loc, err := parseLocation(endpoint.URL)
	if err != nil {
		return err
	}

	cfg, err := t.buildSSHConfig(loc, opts.Auth)
	if err != nil {
		return err
	}

	conn, err := t.dial(loc, opts.Proxy)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", loc.addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, loc.addr, cfg)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return fmt.Errorf("%w: %s as %s: %v", transport.ErrAuthentication, loc.addr, cfg.User, err)
		}
		return fmt.Errorf("failed to establish SSH connection: %w", err)
	}

	t.endpoint = endpoint
	t.base = loc.base
	t.client = ssh.NewClient(sshConn, chans, reqs)
	t.Debug(fmt.Sprintf("connected to %s as %s", loc.addr, cfg.User))
	return nil
}

// buildSSHConfig creates an SSH client config from the credentials. Key and
// password methods are both offered when both are present.
func (t *Transport) buildSSHConfig(loc location, auth *config.AuthInfo) (*ssh.ClientConfig, error) {
	if auth == nil {
		auth = &config.AuthInfo{}
	}
	user := auth.Username
	if user == "" {
		user = loc.user
	}
	if user == "" {
		return nil, fmt.Errorf("%w: no user name for %s", transport.ErrAuthentication, loc.addr)
	}

	var methods []ssh.AuthMethod
	if len(auth.PrivateKey) > 0 {
		var signer ssh.Signer
		var err error
		if auth.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(auth.PrivateKey, []byte(auth.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(auth.PrivateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if auth.Password != "" {
		methods = append(methods, ssh.Password(auth.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no private key or password for %s", transport.ErrAuthentication, loc.addr)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if auth.KnownHostsFile != "" {
		cb, err := knownhosts.New(auth.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts %s: %w", auth.KnownHostsFile, err)
		}
		hostKeyCallback = cb
	} else {
		t.Debug(fmt.Sprintf("no known hosts file configured, accepting any host key from %s", loc.addr))
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.timeout,
	}, nil
}

func (t *Transport) dial(loc location, p *config.ProxyInfo) (net.Conn, error) {
	direct := &net.Dialer{Timeout: t.timeout}
	if p == nil || p.Bypass(loc.host) {
		return direct.Dial("tcp", loc.addr)
	}
	if typ := strings.ToLower(p.Type); typ != "socks5" {
		return nil, fmt.Errorf("proxy type %q is not supported for ssh, use socks5", p.Type)
	}

	var auth *proxy.Auth
	if p.Username != "" {
		auth = &proxy.Auth{User: p.Username, Password: p.Password}
	}
	proxyAddr := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	dialer, err := proxy.SOCKS5("tcp", proxyAddr, auth, direct)
	if err != nil {
		return nil, fmt.Errorf("creating socks5 dialer for %s: %w", proxyAddr, err)
	}
	t.Debug(fmt.Sprintf("using socks5 proxy %s for %s", proxyAddr, loc.addr))
	return dialer.Dial("tcp", loc.addr)
}

// Get streams base/name into destination.
func (t *Transport) Get(name, destination string) error {
	if t.client == nil {
		return errors.New("ssh transport is not connected")
	}

	remote := t.remotePath(name)
	ev := transport.Event{Resource: name, Endpoint: t.endpoint.URL, Length: -1}
	initiated := ev
	initiated.Type = transport.TransferInitiated
	t.Fire(initiated)

	session, err := t.client.NewSession()
	if err != nil {
		return t.fail(ev, fmt.Errorf("failed to create session: %w", err))
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stderr = &stderr
	stdout, err := session.StdoutPipe()
	if err != nil {
		return t.fail(ev, fmt.Errorf("failed to open stdout: %w", err))
	}
	if err := session.Start("cat -- " + shellQuote(remote)); err != nil {
		return t.fail(ev, fmt.Errorf("failed to start cat: %w", err))
	}

	// Nothing is written until the first byte arrives or cat exits, so a
	// missing file never produces an empty destination.
	body := bufio.NewReader(stdout)
	var waitErr error
	waited := false
	wait := func() error {
		if !waited {
			waitErr = session.Wait()
			waited = true
		}
		return waitErr
	}
	if _, err := body.Peek(1); err == io.EOF {
		if err := wait(); err != nil {
			return t.fail(ev, t.exitError(remote, err, stderr.String()))
		}
	}

	if _, err := transport.WriteDestination(destination, body, ev, &t.Listeners); err != nil {
		wait()
		return err
	}
	if err := wait(); err != nil {
		return t.fail(ev, t.exitError(remote, err, stderr.String()))
	}
	return nil
}

// exitError maps the remote cat failure onto the transport sentinels.
func (t *Transport) exitError(remote string, err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	switch {
	case strings.Contains(stderr, "No such file"):
		return fmt.Errorf("%w: %s", transport.ErrResourceDoesNotExist, remote)
	case strings.Contains(stderr, "Permission denied"):
		return fmt.Errorf("%w: %s", transport.ErrAuthorization, remote)
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) && stderr != "" {
		return fmt.Errorf("reading %s failed with exit status %d: %s", remote, exitErr.ExitStatus(), stderr)
	}
	return fmt.Errorf("reading %s: %w", remote, err)
}

// Disconnect closes the SSH connection. It is safe to call more than once.
func (t *Transport) Disconnect() error {
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing ssh connection to %s: %w", t.endpoint, err)
	}
	t.Debug(fmt.Sprintf("disconnected from %s", t.endpoint))
	return nil
}

func (t *Transport) remotePath(name string) string {
	return path.Join(t.base, strings.TrimPrefix(name, "/"))
}

func (t *Transport) fail(ev transport.Event, err error) error {
	ev.Type = transport.TransferFailed
	ev.Err = err
	t.Fire(ev)
	return err
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
