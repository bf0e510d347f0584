package cli

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cbout22/repofetch/internal/manifest"
)

// formatCompletionLine renders a completion with its description, in the
// tab-separated form cobra expects.
func formatCompletionLine(value, description string) string {
	if description == "" {
		return value
	}
	return value + "\t" + description
}

// completeResourceNames completes resource names from the manifest.
func completeResourceNames(e *env, toComplete string) ([]string, cobra.ShellCompDirective) {
	m, err := manifest.Load(e.manifestPath)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for _, entry := range m.AllEntries() {
		if strings.HasPrefix(entry.Name, toComplete) {
			completions = append(completions, formatCompletionLine(entry.Name, entry.Ref))
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

// completeRepositoryIDs completes repository ids from the manifest.
func completeRepositoryIDs(e *env, toComplete string) ([]string, cobra.ShellCompDirective) {
	m, err := manifest.Load(e.manifestPath)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for _, id := range m.RepositoryIDs() {
		if strings.HasPrefix(id, toComplete) {
			completions = append(completions, formatCompletionLine(id, m.Repositories[id].URL))
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}

// completeRepositoryRefs completes the "repository:" part of a reference,
// then offers paths already used with that repository.
func completeRepositoryRefs(e *env, toComplete string) ([]string, cobra.ShellCompDirective) {
	m, err := manifest.Load(e.manifestPath)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	if strings.Contains(toComplete, ":") {
		seen := make(map[string]bool)
		var completions []string
		for _, entry := range m.AllEntries() {
			if strings.HasPrefix(entry.Ref, toComplete) && !seen[entry.Ref] {
				seen[entry.Ref] = true
				completions = append(completions, formatCompletionLine(entry.Ref, "used by "+entry.Name))
			}
		}
		sort.Strings(completions)
		return completions, cobra.ShellCompDirectiveNoFileComp
	}

	var completions []string
	for _, id := range m.RepositoryIDs() {
		if strings.HasPrefix(id, toComplete) {
			completions = append(completions, formatCompletionLine(id+":", m.Repositories[id].URL))
		}
	}
	return completions, cobra.ShellCompDirectiveNoSpace | cobra.ShellCompDirectiveNoFileComp
}
