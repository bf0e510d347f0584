package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cbout22/repofetch/internal/auth"
	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/manifest"
)

type getOptions struct {
	output   string
	protocol string
}

// newGetCmd creates the `get` command.
// Usage: repofetch get <repository|id=url> <path> [-o file]
func newGetCmd(newEnv envFunc) *cobra.Command {
	opts := getOptions{}

	cmd := &cobra.Command{
		Use:   "get <repository|id=url> <path>",
		Short: "Fetch a single resource without touching the manifest",
		Long: `Fetches one resource from a repository declared in the manifest, or from an
inline repository given as id=url. The content goes to stdout unless -o names
a file.

Examples:
  repofetch get central junit/junit/4.13.2/junit-4.13.2.pom
  repofetch get mirror=https://repo.example.com/maven2 a/b/c.jar -o c.jar`,
		Args: cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return completeRepositoryIDs(newEnv(cmd), toComplete)
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(newEnv(cmd), args[0], args[1], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the resource to this file instead of stdout")
	cmd.Flags().StringVar(&opts.protocol, "protocol", "", "Transport protocol (default: the repository's, else the URL scheme)")

	return cmd
}

// runGet is the testable core of the get command.
func runGet(e *env, repoArg, name string, opts getOptions) (err error) {
	id, repo, err := e.lookupRepository(repoArg)
	if err != nil {
		return err
	}
	authInfo, err := auth.Resolve(repo.Auth)
	if err != nil {
		return fmt.Errorf("repository %s: %w", id, err)
	}
	proxyInfo, err := auth.ResolveProxy(repo.Proxy)
	if err != nil {
		return fmt.Errorf("repository %s: %w", id, err)
	}

	protocol := opts.protocol
	if protocol == "" {
		protocol = repo.EffectiveProtocol()
	}
	f, err := e.factory().ResourceFetcher(e.listener(), authInfo, proxyInfo, protocol)
	if err != nil {
		return err
	}
	if err := f.Connect(id, repo.URL); err != nil {
		return err
	}
	defer func() {
		if derr := f.Disconnect(); derr != nil && err == nil {
			err = derr
		}
	}()

	if opts.output != "" {
		if err := f.RetrieveFile(name, opts.output); err != nil {
			return err
		}
		fmt.Fprintf(e.stderr, "✅ %s → %s\n", name, opts.output)
		return nil
	}

	rc, err := f.Retrieve(name)
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := io.Copy(e.stdout, rc); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// lookupRepository resolves a repository id from the manifest, or an
// inline id=url endpoint when no such id is declared.
func (e *env) lookupRepository(arg string) (string, manifest.Repository, error) {
	m, err := manifest.Load(e.manifestPath)
	if err != nil {
		return "", manifest.Repository{}, fmt.Errorf("loading manifest: %w", err)
	}
	if repo, ok := m.Repositories[arg]; ok {
		return arg, repo, nil
	}
	if strings.Contains(arg, "=") {
		ep, err := config.ParseEndpoint(arg)
		if err != nil {
			return "", manifest.Repository{}, err
		}
		return ep.ID, manifest.Repository{URL: ep.URL}, nil
	}
	repo, err := m.Repository(arg)
	return arg, repo, err
}
