package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cbout22/repofetch/internal/fetcher"
	"github.com/cbout22/repofetch/internal/manifest"
)

// newRepoCmd creates the `repo` command group.
// Each repository is a [repositories.<id>] table in the manifest.
func newRepoCmd(newEnv envFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage repositories",
		Long:  "Manage the repositories resources are fetched from. Use the 'add', 'remove' and 'list' subcommands.",
	}

	cmd.AddCommand(newRepoAddCmd(newEnv))
	cmd.AddCommand(newRepoRemoveCmd(newEnv))
	cmd.AddCommand(newRepoListCmd(newEnv))

	return cmd
}

type repoAddOptions struct {
	protocol string
	auth     manifest.Auth
	proxy    manifest.Proxy
}

// repository builds the manifest table. Auth and proxy tables are only
// written when a flag for them was given.
func (o repoAddOptions) repository(url string) manifest.Repository {
	repo := manifest.Repository{URL: url, Protocol: o.protocol}
	if o.auth != (manifest.Auth{}) {
		a := o.auth
		repo.Auth = &a
	}
	if o.proxy.Host != "" {
		p := o.proxy
		repo.Proxy = &p
	}
	return repo
}

func newRepoAddCmd(newEnv envFunc) *cobra.Command {
	opts := repoAddOptions{}

	cmd := &cobra.Command{
		Use:   "add <id> <url>",
		Short: "Add or replace a repository",
		Long: `Adds a repository to the manifest, replacing any repository with the same id.
Secrets are never written to the manifest: name the environment variables
that hold them instead.

Examples:
  repofetch repo add central https://repo1.maven.org/maven2
  repofetch repo add releases s3://my-bucket/releases?region=eu-west-1 --username AKIA... --password-env AWS_SECRET
  repofetch repo add build scp://build.example.com/srv/artifacts --username deploy --private-key-file ~/.ssh/id_ed25519`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoAdd(newEnv(cmd), args[0], args[1], opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.protocol, "protocol", "", "Transport protocol (default: the URL scheme)")
	f.StringVar(&opts.auth.Username, "username", "", "User name, or S3 access key id")
	f.StringVar(&opts.auth.PasswordEnv, "password-env", "", "Environment variable holding the password or S3 secret key")
	f.StringVar(&opts.auth.TokenEnv, "token-env", "", "Environment variable holding a bearer or S3 session token")
	f.StringVar(&opts.auth.PrivateKeyFile, "private-key-file", "", "SSH private key file")
	f.StringVar(&opts.auth.PassphraseEnv, "passphrase-env", "", "Environment variable holding the private key passphrase")
	f.StringVar(&opts.auth.KnownHostsFile, "known-hosts-file", "", "SSH known_hosts file used to verify the host key")
	f.StringVar(&opts.proxy.Type, "proxy-type", "", "Proxy type: http, https or socks5")
	f.StringVar(&opts.proxy.Host, "proxy-host", "", "Proxy host")
	f.IntVar(&opts.proxy.Port, "proxy-port", 0, "Proxy port")
	f.StringVar(&opts.proxy.Username, "proxy-username", "", "Proxy user name")
	f.StringVar(&opts.proxy.PasswordEnv, "proxy-password-env", "", "Environment variable holding the proxy password")
	f.StringSliceVar(&opts.proxy.NonProxyHosts, "non-proxy-host", nil, "Host pattern that bypasses the proxy (repeatable)")

	return cmd
}

// runRepoAdd is the testable core of the repo add command.
func runRepoAdd(e *env, id, url string, opts repoAddOptions) error {
	m, err := manifest.Load(e.manifestPath)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	repo := opts.repository(url)
	protocol := repo.EffectiveProtocol()
	if protocol == "" {
		protocol = fetcher.DefaultProtocol
	}
	if _, err := e.registry.Lookup(protocol); err != nil {
		return fmt.Errorf("repository %s: %w", id, err)
	}

	_, existed := m.Repositories[id]
	if err := m.SetRepository(id, repo); err != nil {
		return err
	}
	if err := m.Save(e.manifestPath); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}

	verb := "Added"
	if existed {
		verb = "Updated"
	}
	fmt.Fprintf(e.stdout, "✅ %s repository %s (%s, %s)\n", verb, id, protocol, url)
	return nil
}

func newRepoRemoveCmd(newEnv envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a repository no resource uses",
		Args:  cobra.ExactArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return completeRepositoryIDs(newEnv(cmd), toComplete)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoRemove(newEnv(cmd), args[0])
		},
	}
}

// runRepoRemove is the testable core of the repo remove command.
func runRepoRemove(e *env, id string) error {
	m, err := manifest.Load(e.manifestPath)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	removed, err := m.RemoveRepository(id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("repository %s not found in %s", id, e.manifestPath)
	}

	if err := m.Save(e.manifestPath); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}

	fmt.Fprintf(e.stdout, "🗑️  Removed repository %s from %s\n", id, e.manifestPath)
	return nil
}

func newRepoListCmd(newEnv envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the repositories in the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepoList(newEnv(cmd))
		},
	}
}

// runRepoList is the testable core of the repo list command.
func runRepoList(e *env) error {
	m, err := manifest.Load(e.manifestPath)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	ids := m.RepositoryIDs()
	if len(ids) == 0 {
		fmt.Fprintf(e.stdout, "📋 No repositories in %s — add one with 'repofetch repo add'.\n", e.manifestPath)
		return nil
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROTOCOL\tURL\tAUTH")
	for _, id := range ids {
		repo := m.Repositories[id]
		protocol := repo.EffectiveProtocol()
		if protocol == "" {
			protocol = fetcher.DefaultProtocol
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, protocol, repo.URL, authSummary(repo.Auth))
	}
	return tw.Flush()
}

func authSummary(a *manifest.Auth) string {
	switch {
	case a == nil:
		return "env"
	case a.PrivateKeyFile != "":
		return "key"
	case a.TokenEnv != "":
		return "token"
	case a.Username != "":
		return "user " + a.Username
	}
	return "-"
}
