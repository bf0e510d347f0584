package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/injector"
	"github.com/cbout22/repofetch/internal/manifest"
)

// newUseCmd creates the `use` command.
// Usage: repofetch use <name> <repository:path>
func newUseCmd(newEnv envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "use <name> <repository:path>",
		Short: "Add a resource to the manifest and download it",
		Long: `Downloads a resource from a declared repository, writes it below the
manifest's target directory as <name> and adds the entry to the manifest.

Example:
  repofetch use junit.jar central:junit/junit/4.13.2/junit-4.13.2.jar`,
		Args: cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 1 {
				return completeRepositoryRefs(newEnv(cmd), toComplete)
			}
			return nil, cobra.ShellCompDirectiveDefault
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUse(newEnv(cmd), args[0], args[1])
		},
	}
}

// runUse is the testable core of the use command.
func runUse(e *env, name, rawRef string) error {
	// Validate the ref format early
	ref, err := config.ParseResourceRef(rawRef)
	if err != nil {
		return err
	}

	m, err := manifest.Load(e.manifestPath)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}
	if _, err := m.Repository(ref.Repository); err != nil {
		return err
	}

	lock, err := manifest.LoadLock(e.lockPath)
	if err != nil {
		return fmt.Errorf("loading lock file: %w", err)
	}

	inj := injector.New(e.factory(), m, lock, e.rootDir, injector.Options{Listener: e.listener()})

	fmt.Fprintf(e.stdout, "📦 Adding %s from %s...\n", name, rawRef)

	result := inj.Inject(name, rawRef)
	if result.Err != nil {
		return fmt.Errorf("failed to download: %w", result.Err)
	}

	if err := m.Set(name, rawRef); err != nil {
		return err
	}
	if err := m.Save(e.manifestPath); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	if err := lock.Save(e.lockPath); err != nil {
		return fmt.Errorf("saving lock file: %w", err)
	}

	fmt.Fprintf(e.stdout, "✅ %s synced to %s\n", name, result.TargetPath)
	return nil
}
