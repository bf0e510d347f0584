// Package githubtransport implements the "github" transport: files are read
// from a GitHub repository at a branch, tag or commit.
//
// Repository URLs have the form
//
//	github://org/repo[/base/dir][?ref=v1.0]
//
// A missing ref, or ref=latest, means the repository's default branch. The
// ref is pinned to a commit on Connect, so every file fetched over one
// connection comes from the same commit.
package githubtransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/transport"
)

const (
	githubAPIBase = "https://api.github.com"
	githubRawBase = "https://raw.githubusercontent.com"
)

// Protocols lists the protocol names this transport serves.
var Protocols = []string{"github"}

// tokenEnvVars lists the environment variables checked for a GitHub token,
// in priority order, when the repository has no token of its own.
var tokenEnvVars = []string{
	"GITHUB_TOKEN",
	"GH_TOKEN",
}

// Transport downloads raw files from one GitHub repository.
type Transport struct {
	transport.Listeners

	apiBase     string
	rawBase     string
	timeout     time.Duration // total cap per request, zero for none
	readTimeout time.Duration

	endpoint config.Endpoint
	repo     repoRef
	commit   string
	client   *http.Client
}

var _ transport.Transport = (*Transport)(nil)

// Option customises a Transport.
type Option func(*Transport)

// WithBaseURLs points the transport at a GitHub Enterprise server or a test
// double instead of github.com.
func WithBaseURLs(api, raw string) Option {
	return func(t *Transport) {
		t.apiBase = strings.TrimSuffix(api, "/")
		t.rawBase = strings.TrimSuffix(raw, "/")
	}
}

// WithTimeout caps the total time of each request, body included. There is
// no cap by default.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) { t.timeout = d }
}

// WithReadTimeout sets how long to wait for response headers or for the
// next bytes of a file. Zero disables it.
func WithReadTimeout(d time.Duration) Option {
	return func(t *Transport) { t.readTimeout = d }
}

// New creates an unconnected Transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		apiBase:     githubAPIBase,
		rawBase:     githubRawBase,
		readTimeout: transport.DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// repoRef is the parsed form of a github:// repository URL.
type repoRef struct {
	org  string
	repo string
	base string // directory inside the repository, "" for the root
	ref  string
}

func (r repoRef) fullName() string {
	return r.org + "/" + r.repo
}

func parseLocation(raw string) (repoRef, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return repoRef{}, fmt.Errorf("parsing repository url %q: %w", raw, err)
	}
	if u.Scheme != "github" {
		return repoRef{}, fmt.Errorf("repository url %q: scheme must be github", raw)
	}
	repo, base, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	if u.Host == "" || repo == "" {
		return repoRef{}, fmt.Errorf("repository url %q: must be github://org/repo[/dir]", raw)
	}
	return repoRef{
		org:  u.Host,
		repo: repo,
		base: base,
		ref:  u.Query().Get("ref"),
	}, nil
}

// Connect resolves the ref to a commit. The token comes from the
// credentials, else GITHUB_TOKEN or GH_TOKEN; public repositories work
// without one.
func (t *Transport) Connect(endpoint config.Endpoint, opts config.ConnectOptions) error {
	ref, err := parseLocation(endpoint.URL)
	if err != nil {
		return err
	}

	ht := transport.NewHTTPTransport(opts.Proxy, t.readTimeout)
	var rt http.RoundTripper = ht
	if token := tokenFor(opts.Auth); token != "" {
		rt = &tokenTransport{token: token, base: ht}
	} else {
		t.Debug(fmt.Sprintf("no GitHub token for %s, using unauthenticated requests (rate-limited)", ref.fullName()))
	}
	t.client = &http.Client{Transport: rt, Timeout: t.timeout}

	if ref, err = t.resolveRef(ref); err != nil {
		t.client = nil
		return err
	}
	commit, err := t.resolveCommitSHA(ref)
	if err != nil {
		t.client = nil
		return err
	}

	t.endpoint = endpoint
	t.repo = ref
	t.commit = commit
	t.Debug(fmt.Sprintf("connected to %s@%s (%s)", ref.fullName(), ref.ref, commit))
	return nil
}

func tokenFor(auth *config.AuthInfo) string {
	if auth != nil && auth.Token != "" {
		return auth.Token
	}
	if auth != nil && auth.Password != "" {
		return auth.Password
	}
	for _, env := range tokenEnvVars {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

// resolveRef replaces an empty or "latest" ref with the repository's
// default branch.
func (t *Transport) resolveRef(ref repoRef) (repoRef, error) {
	if ref.ref != "" && ref.ref != "latest" {
		return ref, nil
	}

	resp, err := t.client.Get(fmt.Sprintf("%s/repos/%s/%s", t.apiBase, ref.org, ref.repo))
	if err != nil {
		return ref, fmt.Errorf("fetching repo info for %s: %w", ref.fullName(), err)
	}
	defer resp.Body.Close()

	if err := apiStatus(resp, "fetching repo info for "+ref.fullName()); err != nil {
		return ref, err
	}

	var repoInfo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&repoInfo); err != nil {
		return ref, fmt.Errorf("decoding repo info: %w", err)
	}
	if repoInfo.DefaultBranch == "" {
		return ref, fmt.Errorf("could not determine default branch for %s", ref.fullName())
	}

	ref.ref = repoInfo.DefaultBranch
	return ref, nil
}

// resolveCommitSHA resolves the ref (branch, tag, or SHA) to a commit SHA.
func (t *Transport) resolveCommitSHA(ref repoRef) (string, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/repos/%s/%s/commits/%s", t.apiBase, ref.org, ref.repo, url.PathEscape(ref.ref)), nil)
	if err != nil {
		return "", err
	}
	// Only fetch the SHA, not the full commit
	req.Header.Set("Accept", "application/vnd.github.sha")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolving commit SHA for %s@%s: %w", ref.fullName(), ref.ref, err)
	}
	defer resp.Body.Close()

	if err := apiStatus(resp, fmt.Sprintf("resolving commit SHA for %s@%s", ref.fullName(), ref.ref)); err != nil {
		return "", err
	}

	sha, err := io.ReadAll(io.LimitReader(resp.Body, 128))
	if err != nil {
		return "", fmt.Errorf("reading commit SHA: %w", err)
	}
	s := strings.TrimSpace(string(sha))
	if s == "" {
		return "", fmt.Errorf("empty commit SHA for %s@%s", ref.fullName(), ref.ref)
	}
	return s, nil
}

// apiStatus maps a failed API response. A rejected token is an
// authentication failure; anything else keeps the status and body.
func apiStatus(resp *http.Response, what string) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s: HTTP %d", transport.ErrAuthentication, what, resp.StatusCode)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: HTTP %d — %s", what, resp.StatusCode, strings.TrimSpace(string(body)))
}

// rawFileURL builds the raw content URL for name at the pinned commit.
func (t *Transport) rawFileURL(name string) string {
	p := path.Join(t.repo.base, strings.TrimPrefix(name, "/"))
	return fmt.Sprintf("%s/%s/%s/%s/%s", t.rawBase, t.repo.org, t.repo.repo, t.commit, p)
}

// Get downloads name, relative to the repository's base directory, into
// destination.
func (t *Transport) Get(name, destination string) error {
	if t.client == nil {
		return errors.New("github transport is not connected")
	}

	fileURL := t.rawFileURL(name)
	ev := transport.Event{Resource: name, Endpoint: t.endpoint.URL, Length: -1}
	initiated := ev
	initiated.Type = transport.TransferInitiated
	t.Fire(initiated)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return t.fail(ev, fmt.Errorf("creating request for %s: %w", fileURL, err))
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return t.fail(ev, fmt.Errorf("fetching %s: %w", fileURL, err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return t.fail(ev, fmt.Errorf("%w: %s@%s: %s", transport.ErrResourceDoesNotExist, t.repo.fullName(), t.commit, name))
	case http.StatusUnauthorized, http.StatusForbidden:
		return t.fail(ev, fmt.Errorf("%w: %s returned HTTP %d", transport.ErrAuthorization, fileURL, resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return t.fail(ev, fmt.Errorf("fetching %s: HTTP %d — %s", fileURL, resp.StatusCode, strings.TrimSpace(string(body))))
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

func (t *Transport) fail(ev transport.Event, err error) error {
	ev.Type = transport.TransferFailed
	ev.Err = err
	t.Fire(ev)
	return err
}

// tokenTransport is a custom http.RoundTripper that adds the Authorization header.
type tokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid mutating the original
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	if r.Header.Get("Accept") == "" {
		r.Header.Set("Accept", "application/vnd.github+json")
	}
	return t.base.RoundTrip(r)
}
