package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cbout22/repofetch/internal/injector"
	"github.com/cbout22/repofetch/internal/listener"
	"github.com/cbout22/repofetch/internal/manifest"
	"github.com/cbout22/repofetch/internal/transport"
)

type syncOptions struct {
	jobs        int
	skipMissing bool
	metricsFile string
}

// newSyncCmd creates the `sync` command.
// Usage: repofetch sync [--jobs N] [--skip-missing] [--metrics-file f]
func newSyncCmd(newEnv envFunc) *cobra.Command {
	opts := syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch every resource declared in the manifest",
		Long: `Downloads or updates all resources declared in the manifest. Each
repository is fetched from over its own connection; up to --jobs repositories
are fetched from at once.

A failed resource stops the rest of its repository. With --skip-missing,
resources that do not exist are reported and skipped instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), newEnv(cmd), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 4, "Repositories to fetch from concurrently")
	cmd.Flags().BoolVar(&opts.skipMissing, "skip-missing", false, "Skip resources that do not exist instead of failing")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write transfer metrics in the Prometheus text format to this file")

	return cmd
}

// runSync is the testable core of the sync command.
func runSync(ctx context.Context, e *env, opts syncOptions) error {
	m, err := manifest.Load(e.manifestPath)
	if err != nil {
		return fmt.Errorf("loading manifest: %w", err)
	}

	entries := m.AllEntries()
	if len(entries) == 0 {
		fmt.Fprintf(e.stdout, "📋 No resources in %s — nothing to sync.\n", e.manifestPath)
		return nil
	}

	lock, err := manifest.LoadLock(e.lockPath)
	if err != nil {
		return fmt.Errorf("loading lock file: %w", err)
	}
	syncID := lock.BeginSync()

	var extra []transport.Listener
	var reg *prometheus.Registry
	if opts.metricsFile != "" {
		reg = prometheus.NewRegistry()
		metrics, err := listener.NewMetrics(reg)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		extra = append(extra, metrics)
	}

	inj := injector.New(e.factory(), m, lock, e.rootDir, injector.Options{
		Listener:    e.listener(extra...),
		Jobs:        opts.jobs,
		SkipMissing: opts.skipMissing,
	})

	fmt.Fprintf(e.stdout, "🔄 Syncing %d resource(s)...\n", len(entries))
	if e.verbose {
		fmt.Fprintf(e.stdout, "   sync id %s\n", syncID)
	}
	fmt.Fprintln(e.stdout)

	results := inj.SyncAll(ctx, entries)

	var skipped int
	for _, r := range results {
		switch {
		case r.Skipped:
			fmt.Fprintf(e.stdout, "  ⏭️  %s: skipped (%s)\n", r.Name, r.Err)
			skipped++
		case r.Err != nil:
			fmt.Fprintf(e.stdout, "  ❌ %s: %s\n", r.Name, r.Err)
		default:
			fmt.Fprintf(e.stdout, "  ✅ %s → %s\n", r.Name, r.TargetPath)
		}
	}

	if err := lock.Save(e.lockPath); err != nil {
		return fmt.Errorf("saving lock file: %w", err)
	}
	if reg != nil {
		if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	fmt.Fprintln(e.stdout)
	if failed := injector.Failed(results); len(failed) > 0 {
		return fmt.Errorf("%w: %d of %d resource(s) failed", injector.ErrSyncFailed, len(failed), len(results))
	}

	if skipped > 0 {
		fmt.Fprintf(e.stdout, "✅ Synced %d resource(s), skipped %d missing.\n", len(results)-skipped, skipped)
		return nil
	}
	fmt.Fprintln(e.stdout, "✅ All resources synced successfully.")
	return nil
}
