package injector

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cbout22/repofetch/internal/auth"
	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/fetcher"
	"github.com/cbout22/repofetch/internal/manifest"
	"github.com/cbout22/repofetch/internal/transport"
)

// partSuffix marks a download in progress next to its target.
const partSuffix = ".part"

// Injector downloads manifest resources from their repositories and writes
// them below the project root, recording each one in the lock file.
type Injector struct {
	factory  *fetcher.Factory
	manifest *manifest.Manifest
	rootDir  string // project root directory
	opts     Options

	mu   sync.Mutex // guards lock
	lock *manifest.LockFile
}

// Options tunes an Injector. The zero value is usable.
type Options struct {
	// Listener receives transfer events from every fetcher. May be nil.
	Listener transport.Listener
	// Jobs bounds how many repositories are fetched from at once; values
	// below 1 mean 1.
	Jobs int
	// SkipMissing reports resources that do not exist and carries on with
	// the rest of their repository instead of stopping there.
	SkipMissing bool
	// Writer defaults to OSFileWriter.
	Writer FileWriter
}

// New creates an Injector.
func New(factory *fetcher.Factory, m *manifest.Manifest, lock *manifest.LockFile, rootDir string, opts Options) *Injector {
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	if opts.Writer == nil {
		opts.Writer = &OSFileWriter{}
	}
	return &Injector{
		factory:  factory,
		manifest: m,
		lock:     lock,
		rootDir:  rootDir,
		opts:     opts,
	}
}

// InjectResult holds the outcome of injecting a single resource.
type InjectResult struct {
	Name       string
	Ref        string
	Repository string
	TargetPath string
	// Skipped is set when the resource was missing and SkipMissing allowed
	// the sync to continue; Err then holds the not-found error.
	Skipped bool
	Err     error
}

// Inject fetches a single resource over its own connection.
func (inj *Injector) Inject(name, rawRef string) InjectResult {
	results := inj.SyncAll(context.Background(), []manifest.Entry{{Name: name, Ref: rawRef}})
	return results[0]
}

// SyncAll fetches entries, one fetcher per repository, with up to
// Options.Jobs repositories in flight. Results come back in entry order.
func (inj *Injector) SyncAll(ctx context.Context, entries []manifest.Entry) []InjectResult {
	results := make([]InjectResult, len(entries))
	byRepo := make(map[string][]int)
	var order []string

	for i, e := range entries {
		results[i] = InjectResult{Name: e.Name, Ref: e.Ref, TargetPath: inj.manifest.TargetPath(e.Name)}
		if err := manifest.ValidateName(e.Name); err != nil {
			results[i].Err = err
			continue
		}
		ref, err := config.ParseResourceRef(e.Ref)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Repository = ref.Repository
		if _, seen := byRepo[ref.Repository]; !seen {
			order = append(order, ref.Repository)
		}
		byRepo[ref.Repository] = append(byRepo[ref.Repository], i)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(inj.opts.Jobs)
	for _, id := range order {
		id := id
		idx := byRepo[id]
		g.Go(func() error {
			inj.syncRepository(ctx, id, entries, idx, results)
			return nil
		})
	}
	g.Wait()

	return results
}

// syncRepository fetches the entries at idx, all of which live in the
// repository id. Each goroutine writes only its own slots of results.
func (inj *Injector) syncRepository(ctx context.Context, id string, entries []manifest.Entry, idx []int, results []InjectResult) {
	failAll := func(from int, err error) {
		for _, i := range idx[from:] {
			results[i].Err = err
		}
	}

	repo, err := inj.manifest.Repository(id)
	if err != nil {
		failAll(0, err)
		return
	}
	f, err := inj.connect(id, repo)
	if err != nil {
		failAll(0, err)
		return
	}
	defer f.Disconnect()

	for n, i := range idx {
		if err := ctx.Err(); err != nil {
			failAll(n, err)
			return
		}

		ref, _ := config.ParseResourceRef(entries[i].Ref)
		err := inj.fetchOne(f, repo, ref, &results[i])
		if err == nil {
			continue
		}
		results[i].Err = err
		if inj.opts.SkipMissing && fetcher.IsNotFound(err) {
			results[i].Skipped = true
			continue
		}
		if n+1 < len(idx) {
			failAll(n+1, fmt.Errorf("not attempted: an earlier resource from %s failed", id))
		}
		return
	}
}

// connect builds and connects a fetcher for repository id.
func (inj *Injector) connect(id string, repo manifest.Repository) (*fetcher.Fetcher, error) {
	authInfo, err := auth.Resolve(repo.Auth)
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", id, err)
	}
	proxyInfo, err := auth.ResolveProxy(repo.Proxy)
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", id, err)
	}
	f, err := inj.factory.ResourceFetcher(inj.opts.Listener, authInfo, proxyInfo, repo.EffectiveProtocol())
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", id, err)
	}
	if err := f.Connect(id, repo.URL); err != nil {
		return nil, err
	}
	return f, nil
}

// fetchOne downloads ref next to its target and moves it into place, so a
// failed fetch never disturbs a previously synced file.
func (inj *Injector) fetchOne(f fetcher.ResourceFetcher, repo manifest.Repository, ref config.ResourceRef, result *InjectResult) error {
	absTarget := filepath.Join(inj.rootDir, result.TargetPath)
	if err := inj.opts.Writer.MkdirAll(filepath.Dir(absTarget)); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	part := absTarget + partSuffix
	if err := f.RetrieveFile(ref.Path, part); err != nil {
		return err
	}
	if err := inj.opts.Writer.Rename(part, absTarget); err != nil {
		inj.opts.Writer.Remove(part)
		return fmt.Errorf("moving download into place: %w", err)
	}

	inj.mu.Lock()
	defer inj.mu.Unlock()
	return inj.lock.Set(result.Name, result.Ref, ref.Repository, repo.URL, filepath.ToSlash(result.TargetPath), absTarget)
}

// Remove deletes a resource's file and its lock entry.
func (inj *Injector) Remove(name string) (string, error) {
	targetPath := inj.manifest.TargetPath(name)
	if err := inj.opts.Writer.Remove(filepath.Join(inj.rootDir, targetPath)); err != nil {
		return "", fmt.Errorf("deleting %s: %w", targetPath, err)
	}
	inj.mu.Lock()
	inj.lock.Remove(name)
	inj.mu.Unlock()
	return targetPath, nil
}

// Failed returns the results that carry an error and were not skipped.
func Failed(results []InjectResult) []InjectResult {
	var out []InjectResult
	for _, r := range results {
		if r.Err != nil && !r.Skipped {
			out = append(out, r)
		}
	}
	return out
}

// ErrSyncFailed is returned by callers that summarise a partial sync.
var ErrSyncFailed = errors.New("sync failed")
