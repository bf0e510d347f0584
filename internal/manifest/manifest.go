package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/cbout22/repofetch/internal/config"
)

const DefaultManifestFile = "repofetch.toml"

// Manifest represents the full repofetch.toml file: the repositories
// resources come from and the resources to fetch into TargetDir.
type Manifest struct {
	TargetDir    string                `toml:"target_dir,omitempty" yaml:"target_dir,omitempty"`
	Repositories map[string]Repository `toml:"repositories,omitempty" yaml:"repositories,omitempty"`
	// Resources maps a local name (a path below TargetDir) to a
	// "repository:path" reference.
	Resources map[string]string `toml:"resources,omitempty" yaml:"resources,omitempty"`
}

// Repository is one [repositories.<id>] table.
type Repository struct {
	URL      string `toml:"url" yaml:"url"`
	Protocol string `toml:"protocol,omitempty" yaml:"protocol,omitempty"`
	Auth     *Auth  `toml:"auth,omitempty" yaml:"auth,omitempty"`
	Proxy    *Proxy `toml:"proxy,omitempty" yaml:"proxy,omitempty"`
}

// Auth names where a repository's credentials come from. Secrets are never
// stored in the manifest, only the environment variables holding them.
type Auth struct {
	Username       string `toml:"username,omitempty" yaml:"username,omitempty"`
	PasswordEnv    string `toml:"password_env,omitempty" yaml:"password_env,omitempty"`
	TokenEnv       string `toml:"token_env,omitempty" yaml:"token_env,omitempty"`
	PrivateKeyFile string `toml:"private_key_file,omitempty" yaml:"private_key_file,omitempty"`
	PassphraseEnv  string `toml:"passphrase_env,omitempty" yaml:"passphrase_env,omitempty"`
	KnownHostsFile string `toml:"known_hosts_file,omitempty" yaml:"known_hosts_file,omitempty"`
}

// Proxy is a repository's proxy table.
type Proxy struct {
	Type          string   `toml:"type,omitempty" yaml:"type,omitempty"`
	Host          string   `toml:"host" yaml:"host"`
	Port          int      `toml:"port,omitempty" yaml:"port,omitempty"`
	Username      string   `toml:"username,omitempty" yaml:"username,omitempty"`
	PasswordEnv   string   `toml:"password_env,omitempty" yaml:"password_env,omitempty"`
	NonProxyHosts []string `toml:"non_proxy_hosts,omitempty" yaml:"non_proxy_hosts,omitempty"`
}

// EffectiveProtocol returns the configured protocol, else the URL scheme.
// An empty result means the fetcher default applies.
func (r Repository) EffectiveProtocol() string {
	if r.Protocol != "" {
		return strings.ToLower(r.Protocol)
	}
	return config.NewEndpoint("", r.URL).Protocol()
}

// New returns an empty Manifest with initialised maps.
func New() *Manifest {
	return &Manifest{
		Repositories: make(map[string]Repository),
		Resources:    make(map[string]string),
	}
}

// DefaultPath returns ./repofetch.toml when it exists, else the user-level
// manifest under the XDG config directory when that exists, else
// ./repofetch.toml.
func DefaultPath() string {
	if _, err := os.Stat(DefaultManifestFile); err == nil {
		return DefaultManifestFile
	}
	user := filepath.Join(xdg.ConfigHome, "repofetch", DefaultManifestFile)
	if _, err := os.Stat(user); err == nil {
		return user
	}
	return DefaultManifestFile
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads and parses a manifest from the given path. YAML is used for
// .yaml and .yml files, TOML otherwise.
// If the file does not exist it returns an empty manifest (no error).
func Load(path string) (*Manifest, error) {
	m := New()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(data, m)
	} else {
		err = toml.Unmarshal(data, m)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	// Ensure nil maps are initialised
	if m.Repositories == nil {
		m.Repositories = make(map[string]Repository)
	}
	if m.Resources == nil {
		m.Resources = make(map[string]string)
	}

	return m, nil
}

// Save writes the manifest back to the given path in the format its
// extension selects.
func (m *Manifest) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating manifest file: %w", err)
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("encoding manifest: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encoding manifest: %w", err)
		}
		return nil
	}

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(m); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	return nil
}

// TargetPath returns where the resource called name is written, relative to
// the project root.
func (m *Manifest) TargetPath(name string) string {
	dir := m.TargetDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, filepath.FromSlash(name))
}

// Repository looks up a repository by id.
func (m *Manifest) Repository(id string) (Repository, error) {
	repo, ok := m.Repositories[id]
	if !ok {
		return Repository{}, fmt.Errorf("unknown repository %q (add it with 'repofetch repo add')", id)
	}
	return repo, nil
}

// SetRepository adds or replaces a repository.
func (m *Manifest) SetRepository(id string, repo Repository) error {
	if id == "" {
		return fmt.Errorf("repository id must not be empty")
	}
	if strings.Contains(id, ":") {
		return fmt.Errorf("repository id %q must not contain ':'", id)
	}
	if repo.URL == "" {
		return fmt.Errorf("repository %q: url must not be empty", id)
	}
	m.Repositories[id] = repo
	return nil
}

// RemoveRepository deletes a repository that no resource refers to.
// Returns true if the repository existed, false otherwise.
func (m *Manifest) RemoveRepository(id string) (bool, error) {
	if _, ok := m.Repositories[id]; !ok {
		return false, nil
	}
	var users []string
	for _, e := range m.AllEntries() {
		if ref, err := config.ParseResourceRef(e.Ref); err == nil && ref.Repository == id {
			users = append(users, e.Name)
		}
	}
	if len(users) > 0 {
		return false, fmt.Errorf("repository %q is still used by: %s", id, strings.Join(users, ", "))
	}
	delete(m.Repositories, id)
	return true, nil
}

// RepositoryIDs returns the repository ids in sorted order.
func (m *Manifest) RepositoryIDs() []string {
	ids := make([]string, 0, len(m.Repositories))
	for id := range m.Repositories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidateName checks that a resource name is a relative path that stays
// inside the target directory.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("resource name must not be empty")
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" || strings.HasPrefix(name, "/") {
		return fmt.Errorf("resource name %q must be a relative path", name)
	}
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("resource name %q escapes the target directory", name)
	}
	return nil
}

// Set adds or updates a resource. ref must parse as "repository:path".
func (m *Manifest) Set(name, ref string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if _, err := config.ParseResourceRef(ref); err != nil {
		return err
	}
	m.Resources[name] = ref
	return nil
}

// Remove deletes a resource.
// Returns true if the entry existed, false otherwise.
func (m *Manifest) Remove(name string) bool {
	if _, ok := m.Resources[name]; !ok {
		return false
	}
	delete(m.Resources, name)
	return true
}

// AllEntries returns every (name, ref) pair in the manifest, sorted by name.
func (m *Manifest) AllEntries() []Entry {
	entries := make([]Entry, 0, len(m.Resources))
	for name, ref := range m.Resources {
		entries = append(entries, Entry{Name: name, Ref: ref})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Validate checks that every resource reference parses and names a known
// repository.
func (m *Manifest) Validate() error {
	var problems []string
	for _, e := range m.AllEntries() {
		if err := ValidateName(e.Name); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		ref, err := config.ParseResourceRef(e.Ref)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", e.Name, err))
			continue
		}
		if _, ok := m.Repositories[ref.Repository]; !ok {
			problems = append(problems, fmt.Sprintf("%s: unknown repository %q", e.Name, ref.Repository))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid manifest:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// Entry is a flattened manifest row.
type Entry struct {
	Name string
	Ref  string
}
