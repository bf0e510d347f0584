package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/cbout22/repofetch/internal/auth"
	"github.com/cbout22/repofetch/internal/fetcher"
	"github.com/cbout22/repofetch/internal/listener"
	"github.com/cbout22/repofetch/internal/manifest"
	"github.com/cbout22/repofetch/internal/transport"
)

// version is set at build time via -ldflags.
var version = "dev"

// env carries what every command needs besides its own arguments. Tests
// build one directly instead of going through flags.
type env struct {
	manifestPath string
	lockPath     string
	rootDir      string
	verbose      bool
	stdout       io.Writer
	stderr       io.Writer
	registry     *transport.Registry
}

type envFunc func(cmd *cobra.Command) *env

func (e *env) factory() *fetcher.Factory {
	return fetcher.NewFactory(e.registry)
}

// listener reports transfers on stderr, plus any extra listeners.
func (e *env) listener(extra ...transport.Listener) transport.Listener {
	ls := append([]transport.Listener{listener.NewConsole(e.stderr, e.verbose)}, extra...)
	return listener.NewMulti(ls...)
}

type globalFlags struct {
	manifest string
	verbose  bool
	timeout  time.Duration
}

func (f *globalFlags) env(cmd *cobra.Command) *env {
	path := f.manifest
	if path == "" {
		path = manifest.DefaultPath()
	}
	return &env{
		manifestPath: path,
		lockPath:     manifest.DefaultLockFile,
		rootDir:      ".",
		verbose:      f.verbose,
		stdout:       cmd.OutOrStdout(),
		stderr:       cmd.ErrOrStderr(),
		registry:     newRegistry(f.timeout),
	}
}

// NewRootCmd creates the top-level `repofetch` command.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "repofetch",
		Short: "Fetch files from HTTP, S3, SSH and local repositories",
		Long: `repofetch downloads resources from remote repositories into your project
through a repofetch.toml manifest. Repositories are reached over http(s), s3,
scp/ssh or file URLs, and every fetched file is recorded in .repofetch.lock.

Credentials come from the environment; .env and .env.local in the current
directory are loaded first.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return auth.LoadEnvFiles(".")
		},
	}

	root.PersistentFlags().StringVarP(&flags.manifest, "manifest", "m", "", "Manifest file (default ./repofetch.toml, then the user config directory)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Print transfer starts and transport diagnostics")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 0, "Total time cap for each request, download included (default: none; stalled connections still time out; bounds connecting for scp/ssh)")

	newEnv := flags.env

	root.AddCommand(newGetCmd(newEnv))
	root.AddCommand(newSyncCmd(newEnv))
	root.AddCommand(newCheckCmd(newEnv))
	root.AddCommand(newUseCmd(newEnv))
	root.AddCommand(newUnuseCmd(newEnv))
	root.AddCommand(newRepoCmd(newEnv))

	return root
}

// Execute runs the root command. Temp files left behind by interrupted
// streams are removed before the process exits.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	stop()
	fetcher.RemoveTempFiles()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
