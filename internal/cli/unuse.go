package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cbout22/repofetch/internal/injector"
	"github.com/cbout22/repofetch/internal/manifest"
)

// newUnuseCmd creates the `unuse` command.
// Usage: repofetch unuse <name>
func newUnuseCmd(newEnv envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "unuse <name>",
		Short: "Remove a resource and delete its local file",
		Long: `Removes a resource from the manifest and deletes the corresponding local
file from disk.

Example:
  repofetch unuse junit.jar`,
		Args: cobra.ExactArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return completeResourceNames(newEnv(cmd), toComplete)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnuse(newEnv(cmd), args[0])
		},
	}
}

// runUnuse is the testable core of the unuse command.
func runUnuse(e *env, name string) error {
	m, err := manifest.Load(e.manifestPath)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	lock, err := manifest.LoadLock(e.lockPath)
	if err != nil {
		return fmt.Errorf("loading lock file: %w", err)
	}

	if !m.Remove(name) {
		return fmt.Errorf("%s not found in %s", name, e.manifestPath)
	}

	inj := injector.New(e.factory(), m, lock, e.rootDir, injector.Options{})
	targetPath, err := inj.Remove(name)
	if err != nil {
		return err
	}

	if err := m.Save(e.manifestPath); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	if err := lock.Save(e.lockPath); err != nil {
		return fmt.Errorf("saving lock file: %w", err)
	}

	fmt.Fprintf(e.stdout, "🗑️  Removed %s from %s\n", name, e.manifestPath)
	fmt.Fprintf(e.stdout, "🧹 Deleted %s\n", targetPath)
	return nil
}
