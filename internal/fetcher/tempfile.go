package fetcher

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// tempFiles tracks every temp file handed out by Retrieve that has not been
// removed yet, so RemoveTempFiles can sweep them on exit.
var tempFiles = struct {
	sync.Mutex
	paths map[string]struct{}
}{paths: make(map[string]struct{})}

func trackTempFile(path string) {
	tempFiles.Lock()
	defer tempFiles.Unlock()
	tempFiles.paths[path] = struct{}{}
}

func untrackTempFile(path string) {
	tempFiles.Lock()
	defer tempFiles.Unlock()
	delete(tempFiles.paths, path)
}

// RemoveTempFiles deletes temp files from streams that were never closed.
// Call it before the process exits.
func RemoveTempFiles() {
	tempFiles.Lock()
	defer tempFiles.Unlock()
	for path := range tempFiles.paths {
		os.Remove(path)
		delete(tempFiles.paths, path)
	}
}

// tempPattern derives an os.CreateTemp pattern from a resource name.
func tempPattern(name string) string {
	base := name
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	base = strings.ReplaceAll(base, "*", "_")
	if base == "" || base == "." || base == ".." {
		base = "resource"
	}
	return "repofetch-*-" + base
}

// tempFileReader reads a temp file and deletes it on Close.
type tempFileReader struct {
	f    *os.File
	path string

	once sync.Once
	err  error
}

func (r *tempFileReader) Read(p []byte) (int, error) {
	return r.f.Read(p)
}

// Close closes and removes the file. Only the first call does any work.
func (r *tempFileReader) Close() error {
	r.once.Do(func() {
		closeErr := r.f.Close()
		if errors.Is(closeErr, os.ErrClosed) {
			closeErr = nil
		}
		removeErr := os.Remove(r.path)
		if errors.Is(removeErr, fs.ErrNotExist) {
			removeErr = nil
		}
		untrackTempFile(r.path)
		r.err = errors.Join(closeErr, removeErr)
	})
	return r.err
}
