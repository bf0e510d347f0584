package cli

import (
	"path/filepath"
	"testing"

	"github.com/cbout22/repofetch/internal/manifest"
)

const checkRoot = "/project"

// testFileWriter is a minimal in-memory FileWriter for checker tests.
type testFileWriter struct {
	files map[string]bool // paths that "exist"
}

// newTestFileWriter marks the given resource names as present below
// checkRoot/lib.
func newTestFileWriter(names ...string) *testFileWriter {
	fw := &testFileWriter{files: make(map[string]bool)}
	for _, n := range names {
		fw.files[filepath.Join(checkRoot, "lib", n)] = true
	}
	return fw
}

func (f *testFileWriter) MkdirAll(path string) error           { return nil }
func (f *testFileWriter) Rename(oldPath, newPath string) error { return nil }
func (f *testFileWriter) Remove(path string) error             { return nil }
func (f *testFileWriter) Exists(path string) bool              { return f.files[path] }

// checkManifest builds a manifest from name/ref pairs.
func checkManifest(pairs ...string) *manifest.Manifest {
	m := manifest.New()
	m.TargetDir = "lib"
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Resources[pairs[i]] = pairs[i+1]
	}
	return m
}

// lockWith records name as fetched from ref.
func lockWith(lock *manifest.LockFile, name, ref string) *manifest.LockFile {
	lock.Entries[name] = manifest.LockEntry{
		Name:       name,
		Ref:        ref,
		Repository: "central",
		TargetPath: "lib/" + name,
		Checksum:   "sha",
	}
	return lock
}

func TestCheckResources_AllSynced(t *testing.T) {
	t.Parallel()

	m := checkManifest(
		"helper.jar", "central:org/helper/1.0/helper-1.0.jar",
		"review.pom", "central:org/review/2.0/review-2.0.pom",
	)
	lock := manifest.NewLockFile()
	lockWith(lock, "helper.jar", "central:org/helper/1.0/helper-1.0.jar")
	lockWith(lock, "review.pom", "central:org/review/2.0/review-2.0.pom")

	results := CheckResources(m, lock, newTestFileWriter("helper.jar", "review.pom"), checkRoot)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Status != CheckOK {
			t.Errorf("%s: status = %d, want CheckOK", r.Name, r.Status)
		}
	}
	if results[0].TargetPath != filepath.Join("lib", "helper.jar") {
		t.Errorf("TargetPath = %q, want lib/helper.jar", results[0].TargetPath)
	}
}

func TestCheckResources_NeverSynced(t *testing.T) {
	t.Parallel()

	m := checkManifest("helper.jar", "central:helper.jar")
	results := CheckResources(m, manifest.NewLockFile(), newTestFileWriter(), checkRoot)

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Status != CheckNeverSynced {
		t.Errorf("status = %d, want CheckNeverSynced", results[0].Status)
	}
}

func TestCheckResources_FileMissing(t *testing.T) {
	t.Parallel()

	m := checkManifest("helper.jar", "central:helper.jar")
	lock := lockWith(manifest.NewLockFile(), "helper.jar", "central:helper.jar")

	results := CheckResources(m, lock, newTestFileWriter(), checkRoot)

	if results[0].Status != CheckFileMissing {
		t.Errorf("status = %d, want CheckFileMissing", results[0].Status)
	}
}

func TestCheckResources_NotInLock(t *testing.T) {
	t.Parallel()

	m := checkManifest("helper.jar", "central:helper.jar")
	results := CheckResources(m, manifest.NewLockFile(), newTestFileWriter("helper.jar"), checkRoot)

	if results[0].Status != CheckNotInLock {
		t.Errorf("status = %d, want CheckNotInLock", results[0].Status)
	}
}

func TestCheckResources_RefMismatch(t *testing.T) {
	t.Parallel()

	m := checkManifest("helper.jar", "central:helper/2.0/helper.jar")
	lock := lockWith(manifest.NewLockFile(), "helper.jar", "central:helper/1.0/helper.jar")

	results := CheckResources(m, lock, newTestFileWriter("helper.jar"), checkRoot)

	r := results[0]
	if r.Status != CheckRefMismatch {
		t.Errorf("status = %d, want CheckRefMismatch", r.Status)
	}
	if r.LockRef != "central:helper/1.0/helper.jar" {
		t.Errorf("LockRef = %q, want %q", r.LockRef, "central:helper/1.0/helper.jar")
	}
	if r.ManifRef != "central:helper/2.0/helper.jar" {
		t.Errorf("ManifRef = %q, want %q", r.ManifRef, "central:helper/2.0/helper.jar")
	}
}

func TestCheckResources_Empty(t *testing.T) {
	t.Parallel()

	results := CheckResources(manifest.New(), manifest.NewLockFile(), newTestFileWriter(), checkRoot)

	if results == nil {
		t.Error("expected non-nil slice for empty manifest")
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestCheckResources_MixedStatuses(t *testing.T) {
	t.Parallel()

	m := checkManifest(
		"ok.jar", "central:ok.jar",
		"never-synced.jar", "central:never.jar",
		"file-missing.jar", "central:missing.jar",
		"not-in-lock.jar", "central:unlocked.jar",
		"ref-mismatch.jar", "central:v2/mismatch.jar",
	)

	lock := manifest.NewLockFile()
	lockWith(lock, "ok.jar", "central:ok.jar")
	lockWith(lock, "file-missing.jar", "central:missing.jar")
	lockWith(lock, "ref-mismatch.jar", "central:v1/mismatch.jar")

	fs := newTestFileWriter(
		"ok.jar",
		// never-synced: not on disk
		// file-missing: in lock but NOT on disk
		"not-in-lock.jar", // on disk but NOT in lock
		"ref-mismatch.jar",
	)

	results := CheckResources(m, lock, fs, checkRoot)

	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}

	byName := make(map[string]CheckResult, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}

	wantStatuses := map[string]CheckStatus{
		"ok.jar":           CheckOK,
		"never-synced.jar": CheckNeverSynced,
		"file-missing.jar": CheckFileMissing,
		"not-in-lock.jar":  CheckNotInLock,
		"ref-mismatch.jar": CheckRefMismatch,
	}

	for name, want := range wantStatuses {
		r, ok := byName[name]
		if !ok {
			t.Errorf("missing result for %q", name)
			continue
		}
		if r.Status != want {
			t.Errorf("%q: status = %d, want %d", name, r.Status, want)
		}
	}
}
