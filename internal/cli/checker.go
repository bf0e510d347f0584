package cli

import (
	"path/filepath"

	"github.com/cbout22/repofetch/internal/injector"
	"github.com/cbout22/repofetch/internal/manifest"
)

// CheckStatus describes the sync status of a single resource.
type CheckStatus int

const (
	CheckOK          CheckStatus = iota // File exists, lock matches
	CheckNeverSynced                    // Not in lock, not on disk
	CheckFileMissing                    // In lock but file deleted
	CheckNotInLock                      // File exists but no lock entry
	CheckRefMismatch                    // Lock ref differs from manifest ref
)

// CheckResult holds the outcome of checking one resource.
type CheckResult struct {
	Name       string
	TargetPath string
	Status     CheckStatus
	LockRef    string // ref in lock file (empty if not in lock)
	ManifRef   string // ref in manifest
}

// CheckResources validates every manifest resource against the lock file
// and the files below rootDir.
// This is a pure function: it reads state through its arguments, not globals.
func CheckResources(m *manifest.Manifest, lock *manifest.LockFile, fs injector.FileWriter, rootDir string) []CheckResult {
	entries := m.AllEntries()
	results := make([]CheckResult, 0, len(entries))

	for _, entry := range entries {
		targetPath := m.TargetPath(entry.Name)

		fileExists := fs.Exists(filepath.Join(rootDir, targetPath))
		lockEntry, locked := lock.Get(entry.Name)

		var status CheckStatus
		switch {
		case !fileExists && !locked:
			status = CheckNeverSynced
		case !fileExists && locked:
			status = CheckFileMissing
		case fileExists && !locked:
			status = CheckNotInLock
		case fileExists && locked && lockEntry.Ref != entry.Ref:
			status = CheckRefMismatch
		default:
			status = CheckOK
		}

		results = append(results, CheckResult{
			Name:       entry.Name,
			TargetPath: targetPath,
			Status:     status,
			LockRef:    lockEntry.Ref,
			ManifRef:   entry.Ref,
		})
	}

	return results
}
