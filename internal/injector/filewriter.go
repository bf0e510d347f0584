package injector

// FileWriter abstracts the filesystem operations the injector performs
// around a download.
type FileWriter interface {
	// MkdirAll creates a directory path and all necessary parents.
	MkdirAll(path string) error

	// Rename moves a finished download over its target, replacing it.
	Rename(oldPath, newPath string) error

	// Remove deletes a file or directory (recursively).
	Remove(path string) error

	// Exists reports whether the given path exists.
	Exists(path string) bool
}
