package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint identifies a remote repository a transport connects to.
type Endpoint struct {
	ID  string // Repository identifier, e.g. "central"
	URL string // Base URL of the repository
}

// NewEndpoint builds an Endpoint from an id and a URL. Neither value is
// validated; a malformed URL is left for the transport to reject.
func NewEndpoint(id, rawURL string) Endpoint {
	return Endpoint{ID: id, URL: rawURL}
}

// String renders the endpoint as "id (url)".
func (e Endpoint) String() string {
	return fmt.Sprintf("%s (%s)", e.ID, e.URL)
}

// Protocol returns the lower-cased URL scheme, or "" when the URL has none.
func (e Endpoint) Protocol() string {
	i := strings.Index(e.URL, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(e.URL[:i])
}

// ParseEndpoint parses an inline endpoint of the form "id=url".
func ParseEndpoint(raw string) (Endpoint, error) {
	parts := strings.SplitN(raw, "=", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: must be <id>=<url>", raw)
	}
	ep := NewEndpoint(parts[0], parts[1])
	if ep.Protocol() == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: url has no scheme", raw)
	}
	return ep, nil
}

// AuthInfo carries credentials for a transport. Which fields matter depends
// on the transport: http uses Token or Username/Password, s3 maps
// Username/Password/Token onto access key, secret and session token, ssh
// uses Username with Password and/or PrivateKey.
type AuthInfo struct {
	Username       string
	Password       string
	Token          string
	PrivateKey     []byte // PEM encoded
	Passphrase     string // for an encrypted PrivateKey
	KnownHostsFile string // ssh only; empty accepts any host key
}

// ProxyInfo describes a proxy a transport should route through.
type ProxyInfo struct {
	Type          string // "http", "https" or "socks5"; empty means "http"
	Host          string
	Port          int
	Username      string
	Password      string
	NonProxyHosts []string // exact hosts or "*.suffix" patterns
}

// URL renders the proxy as a URL, including credentials when set.
func (p ProxyInfo) URL() *url.URL {
	scheme := p.Type
	if scheme == "" {
		scheme = "http"
	}
	host := p.Host
	if p.Port > 0 {
		host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	u := &url.URL{Scheme: scheme, Host: host}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// Bypass reports whether host should be reached directly rather than
// through the proxy.
func (p ProxyInfo) Bypass(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	for _, pattern := range p.NonProxyHosts {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "":
			continue
		case strings.HasPrefix(pattern, "*."):
			suffix := pattern[1:]
			if strings.HasSuffix(host, suffix) || host == pattern[2:] {
				return true
			}
		case host == pattern:
			return true
		}
	}
	return false
}

// ConnectOptions groups the optional connection settings handed to a
// transport. A nil field means the setting is absent.
type ConnectOptions struct {
	Auth  *AuthInfo
	Proxy *ProxyInfo
}

// ResourceRef points at a resource inside a named repository, written as
// "repository:path/to/resource".
type ResourceRef struct {
	Repository string
	Path       string
}

// ParseResourceRef parses "repository:path" into a ResourceRef.
func ParseResourceRef(raw string) (ResourceRef, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ResourceRef{}, fmt.Errorf("invalid reference %q: must be <repository>:<path> (e.g. central:junit/junit/4.13.2/junit-4.13.2.jar)", raw)
	}
	if strings.HasPrefix(parts[1], "//") {
		return ResourceRef{}, fmt.Errorf("invalid reference %q: looks like a URL, use <repository>:<path>", raw)
	}
	return ResourceRef{
		Repository: parts[0],
		Path:       strings.TrimPrefix(parts[1], "/"),
	}, nil
}

// Raw returns the canonical string form of the reference.
func (r ResourceRef) Raw() string {
	return r.Repository + ":" + r.Path
}
