package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cbout22/repofetch/internal/injector"
	"github.com/cbout22/repofetch/internal/manifest"
)

// newCheckCmd creates the `check` command.
// Usage: repofetch check [--strict]
func newCheckCmd(newEnv envFunc) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check if local files are in sync with the manifest",
		Long: `Validates that all resources in the manifest have corresponding local files
and that they match the lock file. Nothing is downloaded, which makes it
useful in CI/CD pipelines.

With --strict, the command exits with a non-zero code if any resource is
missing or stale.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(newEnv(cmd), strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with error code if resources are stale or missing")

	return cmd
}

// runCheck is the testable core of the check command.
func runCheck(e *env, strict bool) error {
	m, err := manifest.Load(e.manifestPath)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	if len(m.Resources) == 0 {
		fmt.Fprintf(e.stdout, "📋 No resources in %s — nothing to check.\n", e.manifestPath)
		return nil
	}

	lock, err := manifest.LoadLock(e.lockPath)
	if err != nil {
		return fmt.Errorf("loading lock file: %w", err)
	}

	results := CheckResources(m, lock, &injector.OSFileWriter{}, e.rootDir)

	fmt.Fprintf(e.stdout, "🔍 Checking %d resource(s)...\n\n", len(results))

	var issues int
	if err := m.Validate(); err != nil {
		fmt.Fprintf(e.stdout, "  ⚠️  %s\n", err)
		issues++
	}
	for _, r := range results {
		switch r.Status {
		case CheckOK:
			fmt.Fprintf(e.stdout, "  ✅ %s — ok\n", r.Name)
		case CheckNeverSynced:
			fmt.Fprintf(e.stdout, "  ❌ %s — missing (never synced)\n", r.Name)
			issues++
		case CheckFileMissing:
			fmt.Fprintf(e.stdout, "  ❌ %s — missing (was synced)\n", r.Name)
			issues++
		case CheckNotInLock:
			fmt.Fprintf(e.stdout, "  ⚠️  %s — file exists but not in lock file (run 'repofetch sync')\n", r.Name)
			issues++
		case CheckRefMismatch:
			fmt.Fprintf(e.stdout, "  ⚠️  %s — ref changed: lock=%s manifest=%s\n", r.Name, r.LockRef, r.ManifRef)
			issues++
		}
	}

	fmt.Fprintln(e.stdout)
	if issues > 0 {
		msg := fmt.Sprintf("Found %d issue(s). Run 'repofetch sync' to fix.", issues)
		if strict {
			return fmt.Errorf("%s", msg)
		}
		fmt.Fprintf(e.stdout, "⚠️  %s\n", msg)
	} else {
		fmt.Fprintln(e.stdout, "✅ All resources are in sync.")
	}
	return nil
}
