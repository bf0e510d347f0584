// Package auth turns the credential references in a manifest into the
// credentials transports connect with.
package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/cbout22/repofetch/internal/config"
	"github.com/cbout22/repofetch/internal/manifest"
)

// Fallback credentials, used for repositories without an auth table.
const (
	EnvToken    = "REPOFETCH_TOKEN"
	EnvUsername = "REPOFETCH_USERNAME"
	EnvPassword = "REPOFETCH_PASSWORD"
)

// LoadEnvFiles loads dir/.env and then dir/.env.local into the process
// environment. Variables already set are kept for .env; .env.local
// overrides both. Missing files are skipped.
func LoadEnvFiles(dir string) error {
	base := filepath.Join(dir, ".env")
	if fileExists(base) {
		if err := godotenv.Load(base); err != nil {
			return fmt.Errorf("loading %s: %w", base, err)
		}
	}
	local := filepath.Join(dir, ".env.local")
	if fileExists(local) {
		if err := godotenv.Overload(local); err != nil {
			return fmt.Errorf("loading %s: %w", local, err)
		}
	}
	return nil
}

// FromEnv returns credentials from REPOFETCH_TOKEN, or from
// REPOFETCH_USERNAME and REPOFETCH_PASSWORD. It checks the token first and
// returns nil when neither is set.
func FromEnv() *config.AuthInfo {
	if tok := os.Getenv(EnvToken); tok != "" {
		return &config.AuthInfo{Token: tok}
	}
	if user := os.Getenv(EnvUsername); user != "" {
		return &config.AuthInfo{Username: user, Password: os.Getenv(EnvPassword)}
	}
	return nil
}

// Resolve builds the credentials for a repository's auth table. A nil table
// falls back to FromEnv. Every *_env field must name a set variable.
func Resolve(a *manifest.Auth) (*config.AuthInfo, error) {
	if a == nil {
		return FromEnv(), nil
	}

	info := &config.AuthInfo{Username: a.Username}
	var err error
	if info.Password, err = lookupEnv(a.PasswordEnv, "password"); err != nil {
		return nil, err
	}
	if info.Token, err = lookupEnv(a.TokenEnv, "token"); err != nil {
		return nil, err
	}
	if info.Passphrase, err = lookupEnv(a.PassphraseEnv, "key passphrase"); err != nil {
		return nil, err
	}
	if a.PrivateKeyFile != "" {
		path, err := expandHome(a.PrivateKeyFile)
		if err != nil {
			return nil, err
		}
		info.PrivateKey, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
	}
	if a.KnownHostsFile != "" {
		if info.KnownHostsFile, err = expandHome(a.KnownHostsFile); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// ResolveProxy builds the proxy settings for a repository's proxy table.
// A nil table means no proxy.
func ResolveProxy(p *manifest.Proxy) (*config.ProxyInfo, error) {
	if p == nil {
		return nil, nil
	}
	if p.Host == "" {
		return nil, fmt.Errorf("proxy host must not be empty")
	}
	password, err := lookupEnv(p.PasswordEnv, "proxy password")
	if err != nil {
		return nil, err
	}
	return &config.ProxyInfo{
		Type:          strings.ToLower(p.Type),
		Host:          p.Host,
		Port:          p.Port,
		Username:      p.Username,
		Password:      password,
		NonProxyHosts: p.NonProxyHosts,
	}, nil
}

func lookupEnv(name, what string) (string, error) {
	if name == "" {
		return "", nil
	}
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("no %s found: set %s in your environment or .env file", what, name)
	}
	return v, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
