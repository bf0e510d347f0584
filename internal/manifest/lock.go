package manifest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
)

const DefaultLockFile = ".repofetch.lock"

// LockFile is the shadow manifest that tracks which files repofetch
// "owns". It stores the fetched state of each resource so that
// `repofetch sync` and `repofetch check` can detect drift.
type LockFile struct {
	// Version of the lock file format.
	Version int `json:"version"`
	// SyncID identifies the sync run that last wrote the file.
	SyncID string `json:"sync_id,omitempty"`
	// Entries keyed by resource name.
	Entries map[string]LockEntry `json:"entries"`
}

// LockEntry records the fetched state of a single managed resource.
type LockEntry struct {
	Name       string `json:"name"`
	Ref        string `json:"ref"`         // original ref string (e.g. central:junit/junit/4.13.2/junit-4.13.2.jar)
	Repository string `json:"repository"`  // repository id at fetch time
	URL        string `json:"url"`         // repository URL at fetch time
	TargetPath string `json:"target_path"` // local file path relative to project root
	Size       int64  `json:"size"`
	Checksum   string `json:"checksum"`   // SHA-256 of the downloaded content
	FetchedAt  string `json:"fetched_at"` // RFC 3339 timestamp of last fetch
}

// NewLockFile returns an initialised empty lock file.
func NewLockFile() *LockFile {
	return &LockFile{
		Version: 1,
		Entries: make(map[string]LockEntry),
	}
}

// LoadLock reads and parses a .repofetch.lock file.
// Returns an empty lock file if the file does not exist.
func LoadLock(path string) (*LockFile, error) {
	lf := NewLockFile()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading lock file: %w", err)
	}

	if err := json.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing lock file: %w", err)
	}

	if lf.Entries == nil {
		lf.Entries = make(map[string]LockEntry)
	}

	return lf, nil
}

// Save writes the lock file to the given path.
func (lf *LockFile) Save(path string) error {
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding lock file: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}

	return nil
}

// BeginSync stamps the lock file with a new sync id and returns it.
func (lf *LockFile) BeginSync() string {
	lf.SyncID = uuid.NewString()
	return lf.SyncID
}

// Set records or updates a lock entry after a successful fetch. absPath is
// the fetched file on disk; targetPath is what gets recorded.
func (lf *LockFile) Set(name, ref, repository, url, targetPath, absPath string) error {
	size, sum, err := checksumFile(absPath)
	if err != nil {
		return fmt.Errorf("checksumming %s: %w", targetPath, err)
	}
	lf.Entries[name] = LockEntry{
		Name:       name,
		Ref:        ref,
		Repository: repository,
		URL:        url,
		TargetPath: targetPath,
		Size:       size,
		Checksum:   sum,
		FetchedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	return nil
}

// Get retrieves a lock entry, if it exists.
func (lf *LockFile) Get(name string) (LockEntry, bool) {
	e, ok := lf.Entries[name]
	return e, ok
}

// Remove deletes a lock entry.
func (lf *LockFile) Remove(name string) {
	delete(lf.Entries, name)
}

// checksumFile returns the size and hex-encoded SHA-256 of the file at path.
func checksumFile(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return n, fmt.Sprintf("%x", h.Sum(nil)), nil
}
